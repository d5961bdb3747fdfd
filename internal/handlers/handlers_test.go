package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/xerrors"

	"github.com/Brownie44l1/beauty-api/internal/model"
	"github.com/Brownie44l1/beauty-api/internal/preprocess"
	"github.com/Brownie44l1/beauty-api/internal/registry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeScorer decodes like model.Service but answers from fixed values.
type fakeScorer struct {
	score     float64
	modelErr  error
	healthErr error
}

func (f *fakeScorer) ScoreBase64(encoded, modelPath string) (float64, error) {
	img, err := preprocess.DecodeBase64(encoded)
	if err != nil {
		return 0, xerrors.Errorf("%v: %w", err, model.ErrInvalidInput)
	}
	return f.ScoreImage(img, modelPath)
}

func (f *fakeScorer) ScoreImage(img image.Image, modelPath string) (float64, error) {
	if f.modelErr != nil {
		return 0, f.modelErr
	}
	return f.score, nil
}

func (f *fakeScorer) Health() error        { return f.healthErr }
func (f *fakeScorer) DefaultModel() string { return "models/default.ckpt" }
func (f *fakeScorer) Loaded() []string     { return nil }

type fakeLister []registry.Record

func (f fakeLister) List() ([]registry.Record, error) { return f, nil }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func postJSON(t *testing.T, r http.Handler, body interface{}) (*httptest.ResponseRecorder, model.PredictResponse) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp model.PredictResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return w, resp
}

func TestPredict(t *testing.T) {
	r := NewRouter(NewHandler(&fakeScorer{score: 3.25}, nil), RouterOptions{})
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t))

	w, resp := postJSON(t, r, model.PredictRequest{Image: dataURL})
	if w.Code != http.StatusOK || !resp.Success || resp.Score != 3.25 {
		t.Fatalf("status %d, resp %+v", w.Code, resp)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("missing request id")
	}

	w, resp = postJSON(t, r, model.PredictRequest{Image: ""})
	if w.Code != http.StatusBadRequest || resp.Success {
		t.Fatalf("empty image: status %d, resp %+v", w.Code, resp)
	}

	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status %d", rec.Code)
	}
}

func TestPredictErrorMapping(t *testing.T) {
	dataURL := base64.StdEncoding.EncodeToString(pngBytes(t))
	cases := []struct {
		err  error
		want int
	}{
		{xerrors.Errorf("x.ckpt: %w", model.ErrModelNotFound), http.StatusNotFound},
		{xerrors.Errorf("outside root: %w", model.ErrInvalidInput), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
		{xerrors.Errorf("m.ckpt produced a non-finite score NaN: %w", model.ErrNonFinite), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := NewRouter(NewHandler(&fakeScorer{modelErr: tc.err}, nil), RouterOptions{})
		w, resp := postJSON(t, r, model.PredictRequest{Image: dataURL, ModelPath: "models/x.ckpt"})
		if w.Code != tc.want || resp.Success || resp.Message == "" {
			t.Errorf("%v: status %d, resp %+v", tc.err, w.Code, resp)
		}
	}
}

func TestPredictFromImage(t *testing.T) {
	r := NewRouter(NewHandler(&fakeScorer{score: 7}, nil), RouterOptions{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "face.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(pngBytes(t))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/predict/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/predict/image", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing file: status %d", w.Code)
	}
}

func TestHealthAndModels(t *testing.T) {
	scorer := &fakeScorer{healthErr: model.ErrModelNotFound}
	r := NewRouter(NewHandler(scorer, fakeLister{{Name: "beauty_model_female"}}), RouterOptions{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &health)
	if health["status"] != "unhealthy" || health["model_loaded"] != false {
		t.Fatalf("health = %v", health)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/models", nil))
	var models struct {
		Models []registry.Record `json:"models"`
		Loaded []string          `json:"loaded"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &models); err != nil {
		t.Fatal(err)
	}
	if len(models.Models) != 1 || models.Models[0].Name != "beauty_model_female" || models.Loaded == nil {
		t.Fatalf("models = %+v", models)
	}
}

func TestCORS(t *testing.T) {
	r := NewRouter(NewHandler(&fakeScorer{}, nil), RouterOptions{CORSOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("preflight: status %d, headers %v", w.Code, w.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin: status %d, headers %v", w.Code, w.Header())
	}
}
