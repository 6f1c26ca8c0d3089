package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twinsim/internal/clinical"
	"twinsim/internal/config"
	"twinsim/internal/scoring"
)

func reportRequest() Request {
	return Request{
		Patient:       testBaseline,
		Modifications: clinical.Values{clinical.FieldBMI: 26, clinical.FieldHbA1c: 7.2, clinical.FieldGlucose: 180},
		OriginalRisk:  0.62,
		NewRisk:       0.41,
	}
}

func TestHTTPClient_Narrate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/simulate/report", r.URL.Path)

		var body map[string]map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body, 2, "only patient and modifications go over the wire")
		assert.Equal(t, 26.0, body["modifications"]["bmi"])
		assert.Equal(t, "current", body["patient"]["smoking_history"])

		w.Write([]byte(`{"report": "## Outlook\nRisk drops."}`))
	}))
	defer server.Close()

	text, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL}).Narrate(context.Background(), reportRequest())
	require.NoError(t, err)
	assert.Equal(t, "## Outlook\nRisk drops.", text)
}

func TestHTTPClient_Narrate_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail": "model exploded"}`))
	}))
	defer server.Close()

	_, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL}).Narrate(context.Background(), reportRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNarrative)

	var svcErr *scoring.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "model exploded", svcErr.Detail)
}

func TestHTTPClient_Narrate_EmptyReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"report": ""}`))
	}))
	defer server.Close()

	_, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL}).Narrate(context.Background(), reportRequest())
	assert.ErrorIs(t, err, ErrNarrative)
}

func TestOfflineClient(t *testing.T) {
	text, err := OfflineClient{}.Narrate(context.Background(), reportRequest())
	require.NoError(t, err)
	assert.Equal(t, "Simulated Analysis: Reducing risk factors has improved the projected outcome by 21.0%. "+
		"Sustained adherence to these targets is expected to yield long-term benefits. (AI Offline)", text)
}

func TestFallback(t *testing.T) {
	var secondaryCalls atomic.Int32
	secondary := ClientFunc(func(ctx context.Context, req Request) (string, error) {
		secondaryCalls.Add(1)
		return "offline", nil
	})

	t.Run("primary succeeds", func(t *testing.T) {
		f := &Fallback{
			Primary:   ClientFunc(func(context.Context, Request) (string, error) { return "online", nil }),
			Secondary: secondary,
		}
		text, err := f.Narrate(context.Background(), reportRequest())
		require.NoError(t, err)
		assert.Equal(t, "online", text)
		assert.Equal(t, int32(0), secondaryCalls.Load())
	})

	t.Run("primary fails", func(t *testing.T) {
		f := &Fallback{
			Primary:   ClientFunc(func(context.Context, Request) (string, error) { return "", ErrNarrative }),
			Secondary: secondary,
		}
		text, err := f.Narrate(context.Background(), reportRequest())
		require.NoError(t, err)
		assert.Equal(t, "offline", text)
		assert.Equal(t, int32(1), secondaryCalls.Load())
	})

	t.Run("cancellation is not a failure", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		f := &Fallback{
			Primary:   ClientFunc(func(ctx context.Context, _ Request) (string, error) { return "", ctx.Err() }),
			Secondary: secondary,
		}
		_, err := f.Narrate(ctx, reportRequest())
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(1), secondaryCalls.Load())
	})
}

func TestPrompt(t *testing.T) {
	p := Prompt(reportRequest())
	assert.Contains(t, p, "- Hypertension: yes")
	assert.Contains(t, p, "- Heart disease: no")
	assert.Contains(t, p, "- bmi: 31 -> 26")
	assert.Contains(t, p, "- HbA1c_level: unchanged at 7.2 %")
	assert.Contains(t, p, "- blood_glucose_level: unchanged at 180 mg/dL")
	assert.Contains(t, p, "62.0% (High) -> 41.0% (Moderate)")
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(context.Background(), config.NarrativeConfig{Provider: config.ProviderOffline})
	require.NoError(t, err)
	assert.IsType(t, OfflineClient{}, c)

	c, err = NewClient(context.Background(), config.NarrativeConfig{Provider: config.ProviderHTTP, BaseURL: "http://x", Fallback: true})
	require.NoError(t, err)
	fb, ok := c.(*Fallback)
	require.True(t, ok)
	assert.IsType(t, &HTTPClient{}, fb.Primary)

	c, err = NewClient(context.Background(), config.NarrativeConfig{Provider: config.ProviderHTTP, BaseURL: "http://x"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPClient{}, c)

	_, err = NewClient(context.Background(), config.NarrativeConfig{Provider: config.ProviderGemini})
	assert.Error(t, err, "gemini requires an API key")

	_, err = NewClient(context.Background(), config.NarrativeConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}
