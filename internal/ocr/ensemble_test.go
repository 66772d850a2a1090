package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"reflect"
	"sync"
	"testing"
)

type fakeResponse struct {
	text  string
	conf  float64
	err   error
	panic bool
}

type fakeEngine struct {
	mu         sync.Mutex
	responses  map[StrategyKind]fakeResponse
	calls      []StrategyKind
	sessionErr error
	closed     int
	onCall     func(StrategyKind)
}

func (f *fakeEngine) NewSession(opts SessionOptions) (Session, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return &fakeSession{engine: f}, nil
}

type fakeSession struct {
	engine *fakeEngine
}

func (s *fakeSession) Recognize(input []byte) (Recognition, error) {
	kind := StrategyKind(input)
	s.engine.mu.Lock()
	s.engine.calls = append(s.engine.calls, kind)
	resp, ok := s.engine.responses[kind]
	onCall := s.engine.onCall
	s.engine.mu.Unlock()

	if onCall != nil {
		onCall(kind)
	}
	if !ok {
		return Recognition{}, fmt.Errorf("engine error for %s", kind)
	}
	if resp.panic {
		panic("tesseract crashed")
	}
	if resp.err != nil {
		return Recognition{}, resp.err
	}
	return Recognition{Text: resp.text, Confidence: resp.conf}, nil
}

func (s *fakeSession) Close() error {
	s.engine.mu.Lock()
	s.engine.closed++
	s.engine.mu.Unlock()
	return nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 16)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestEnsemble(t *testing.T, engine *fakeEngine) *Ensemble {
	t.Helper()
	opts := DefaultOptions()
	opts.MinDimension = 0
	e, err := NewEnsemble(engine, opts, nil)
	if err != nil {
		t.Fatalf("NewEnsemble() error = %v", err)
	}
	// engine input is the strategy name so the fake can answer per strategy
	e.apply = func(kind StrategyKind, _ *image.Gray) ([]byte, error) {
		return []byte(kind), nil
	}
	return e
}

func TestRecognizeStopsAtFirstAcceptedStrategy(t *testing.T) {
	engine := &fakeEngine{responses: map[StrategyKind]fakeResponse{
		StrategyGrayscale: {text: "blurry", conf: 40},
		StrategyNormalize: {text: "Ibuprofen 400", conf: 90},
		StrategyThreshold: {text: "Ibuprofen 400 clearer", conf: 99},
	}}
	e := newTestEnsemble(t, engine)

	res := e.Recognize(context.Background(), RawImage{Data: testPNG(t)})

	wantCalls := []StrategyKind{StrategyGrayscale, StrategyNormalize}
	if !reflect.DeepEqual(engine.calls, wantCalls) {
		t.Errorf("engine calls = %v, want %v", engine.calls, wantCalls)
	}
	if res.Text != "Ibuprofen 400" || res.Strategy != StrategyNormalize {
		t.Errorf("result = %q from %s", res.Text, res.Strategy)
	}
	if !res.Accepted || res.Attempts != 2 {
		t.Errorf("Accepted = %v, Attempts = %d", res.Accepted, res.Attempts)
	}
	if engine.closed != 1 {
		t.Errorf("session closed %d times, want 1", engine.closed)
	}
}

func TestRecognizeCutoffIsExclusive(t *testing.T) {
	engine := &fakeEngine{responses: map[StrategyKind]fakeResponse{
		StrategyGrayscale: {text: "exactly at cutoff", conf: 85},
		StrategyNormalize: {text: "above cutoff", conf: 86},
	}}
	e := newTestEnsemble(t, engine)

	res := e.Recognize(context.Background(), RawImage{Data: testPNG(t)})
	if len(engine.calls) != 2 {
		t.Errorf("engine called %d times, want 2", len(engine.calls))
	}
	if res.Text != "above cutoff" || !res.Accepted {
		t.Errorf("result = %+v", res)
	}
}

func TestRecognizeAllStrategiesFail(t *testing.T) {
	engine := &fakeEngine{responses: map[StrategyKind]fakeResponse{}}
	e := newTestEnsemble(t, engine)

	res := e.Recognize(context.Background(), RawImage{Data: testPNG(t)})

	if res.Text != "" || res.Confidence != 0 {
		t.Errorf("result = {%q, %v}, want empty text and confidence 0", res.Text, res.Confidence)
	}
	if res.Attempts != len(DefaultStrategyOrder) || len(res.Failures) != len(DefaultStrategyOrder) {
		t.Errorf("Attempts = %d, Failures = %d", res.Attempts, len(res.Failures))
	}
	if res.Accepted {
		t.Error("empty result marked accepted")
	}
}

func TestRecognizePicksHigherAdjustedConfidence(t *testing.T) {
	tests := []struct {
		name      string
		responses map[StrategyKind]fakeResponse
		wantText  string
		wantConf  float64
	}{
		{
			name: "later strategy scores higher",
			responses: map[StrategyKind]fakeResponse{
				StrategyGrayscale: {text: "Paracetamol", conf: 60},
				StrategyNormalize: {text: "Paracetamo1", conf: 70},
			},
			wantText: "Paracetamo1",
			wantConf: 70,
		},
		{
			name: "earlier strategy scores higher",
			responses: map[StrategyKind]fakeResponse{
				StrategyGrayscale: {text: "Paracetamol", conf: 70},
				StrategyNormalize: {text: "Paracetamo1", conf: 60},
			},
			wantText: "Paracetamol",
			wantConf: 70,
		},
		{
			name: "ties keep the earlier strategy",
			responses: map[StrategyKind]fakeResponse{
				StrategyGrayscale: {text: "first", conf: 50},
				StrategyNormalize: {text: "second", conf: 50},
			},
			wantText: "first",
			wantConf: 50,
		},
		{
			name: "term bonus can overturn raw confidence",
			responses: map[StrategyKind]fakeResponse{
				StrategyGrayscale: {text: "Paracetamol", conf: 70},
				StrategyNormalize: {text: "Paracetamol Tablets IP 500 mg", conf: 60},
			},
			wantText: "Paracetamol Tablets IP 500 mg",
			wantConf: 75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnsemble(t, &fakeEngine{responses: tt.responses})
			res := e.Recognize(context.Background(), RawImage{Data: testPNG(t)})
			if res.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", res.Text, tt.wantText)
			}
			if res.Confidence != tt.wantConf {
				t.Errorf("Confidence = %v, want %v", res.Confidence, tt.wantConf)
			}
		})
	}
}

func TestRecognizeConfidenceBounds(t *testing.T) {
	tests := []struct {
		name string
		resp fakeResponse
		want float64
	}{
		{name: "engine over 100", resp: fakeResponse{text: "Tablets IP mg", conf: 180}, want: 100},
		{name: "negative engine confidence", resp: fakeResponse{text: "smudge", conf: -12}, want: 0},
		{name: "bonus is capped", resp: fakeResponse{text: "Tablet mg ml IP BP USP Rx MFG EXP", conf: 10}, want: 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnsemble(t, &fakeEngine{responses: map[StrategyKind]fakeResponse{StrategyGrayscale: tt.resp}})
			res := e.Recognize(context.Background(), RawImage{Data: testPNG(t)})
			if res.Confidence != tt.want {
				t.Errorf("Confidence = %v, want %v", res.Confidence, tt.want)
			}
			if res.Confidence < 0 || res.Confidence > 100 {
				t.Errorf("Confidence %v outside [0,100]", res.Confidence)
			}
		})
	}
}

func TestRecognizeRecoversFromStrategyFailures(t *testing.T) {
	engine := &fakeEngine{responses: map[StrategyKind]fakeResponse{
		StrategyGrayscale: {panic: true},
		StrategyNormalize: {text: "   \n "},
		StrategyThreshold: {text: "Cetirizine 10", conf: 55},
	}}
	e := newTestEnsemble(t, engine)

	res := e.Recognize(context.Background(), RawImage{Data: testPNG(t)})

	if res.Text != "Cetirizine 10" || res.Strategy != StrategyThreshold {
		t.Errorf("result = %q from %s", res.Text, res.Strategy)
	}
	if res.Attempts != len(DefaultStrategyOrder) {
		t.Errorf("Attempts = %d, want all strategies tried", res.Attempts)
	}
	if len(res.Failures) != 5 {
		t.Errorf("Failures = %v", res.FailureStrings())
	}
	if res.Failures[0].Strategy != StrategyGrayscale {
		t.Errorf("first failure = %s, want grayscale", res.Failures[0].Strategy)
	}
}

func TestRecognizeHonoursDeadline(t *testing.T) {
	t.Run("expired before start", func(t *testing.T) {
		engine := &fakeEngine{responses: map[StrategyKind]fakeResponse{StrategyGrayscale: {text: "x", conf: 50}}}
		e := newTestEnsemble(t, engine)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res := e.Recognize(ctx, RawImage{Data: testPNG(t)})

		if !res.TimedOut || res.Attempts != 0 || res.Text != "" {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("expires mid-run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		engine := &fakeEngine{
			responses: map[StrategyKind]fakeResponse{
				StrategyGrayscale: {text: "Amlodipine 5", conf: 30},
				StrategyNormalize: {text: "Amlodipine 5 mg", conf: 95},
			},
			onCall: func(StrategyKind) { cancel() },
		}
		e := newTestEnsemble(t, engine)

		res := e.Recognize(ctx, RawImage{Data: testPNG(t)})
		if !res.TimedOut || res.Attempts != 1 {
			t.Errorf("TimedOut = %v, Attempts = %d", res.TimedOut, res.Attempts)
		}
		if res.Text != "Amlodipine 5" {
			t.Errorf("Text = %q, want best-so-far", res.Text)
		}
	})
}

func TestRecognizeUnusableInput(t *testing.T) {
	t.Run("undecodable bytes", func(t *testing.T) {
		engine := &fakeEngine{}
		e := newTestEnsemble(t, engine)
		res := e.Recognize(context.Background(), RawImage{Data: []byte("not an image")})
		if res.Text != "" || res.Confidence != 0 || len(res.Failures) != 1 {
			t.Errorf("result = %+v", res)
		}
		if len(engine.calls) != 0 {
			t.Error("engine called for undecodable input")
		}
	})

	t.Run("session cannot open", func(t *testing.T) {
		engine := &fakeEngine{sessionErr: fmt.Errorf("tessdata missing")}
		e := newTestEnsemble(t, engine)
		res := e.Recognize(context.Background(), RawImage{Data: testPNG(t)})
		if res.Text != "" || res.Confidence != 0 || res.Attempts != 0 {
			t.Errorf("result = %+v", res)
		}
	})
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Options) {}},
		{name: "unknown strategy", mutate: func(o *Options) { o.Strategies = []StrategyKind{"sharpen"} }, wantErr: true},
		{name: "duplicate strategy", mutate: func(o *Options) { o.Strategies = []StrategyKind{StrategyGamma, StrategyGamma} }, wantErr: true},
		{name: "no strategies", mutate: func(o *Options) { o.Strategies = nil }, wantErr: true},
		{name: "cutoff above 100", mutate: func(o *Options) { o.HighConfidenceCutoff = 120 }, wantErr: true},
		{name: "bad page seg mode", mutate: func(o *Options) { o.PageSegMode = 14 }, wantErr: true},
		{name: "max below min", mutate: func(o *Options) { o.MaxDimension = 500 }, wantErr: true},
		{name: "max too large", mutate: func(o *Options) { o.MaxDimension = 20000 }, wantErr: true},
		{name: "max disabled", mutate: func(o *Options) { o.MaxDimension = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			if err := o.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecognizeDownscalesLargeImages(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2400, 300))); err != nil {
		t.Fatal(err)
	}

	engine := &fakeEngine{responses: map[StrategyKind]fakeResponse{
		StrategyGrayscale: {text: "PARACETAMOL", conf: 95},
	}}
	e := newTestEnsemble(t, engine)
	e.opts.MaxDimension = 600

	var got image.Rectangle
	e.apply = func(kind StrategyKind, base *image.Gray) ([]byte, error) {
		got = base.Bounds()
		return []byte(kind), nil
	}

	e.Recognize(context.Background(), RawImage{Data: buf.Bytes(), Filename: "wide.png"})
	if got.Dx() != 600 || got.Dy() != 75 {
		t.Errorf("strategy input bounds = %v, want 600x75", got)
	}
}
