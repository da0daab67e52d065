package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func mockServer(handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(handler)
}

func respondGemini(w http.ResponseWriter, text string, tokens int) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":` + quote(text) + `}]}}],"usageMetadata":{"totalTokenCount":` + itoa(tokens) + `}}`))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestGemini_SuccessfulResponse(t *testing.T) {
	srv := mockServer(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Goog-Api-Key") != "test-key" {
			t.Errorf("api key header = %q", r.Header.Get("X-Goog-Api-Key"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q", r.Header.Get("Content-Type"))
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || req.Contents[0].Parts[0].Text != "Context:\n+Article 1" {
			t.Errorf("request = %+v", req)
		}
		respondGemini(w, "Article 1 ajouté.", 321)
	})
	defer srv.Close()

	g := NewGemini("test-key", srv.URL, "gemini-1.5-flash", time.Second)
	res, err := g.Summarize(context.Background(), "Context:\n+Article 1")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if res.Text != "Article 1 ajouté." {
		t.Errorf("text = %q", res.Text)
	}
	if res.TotalTokens != 321 {
		t.Errorf("tokens = %d, want 321", res.TotalTokens)
	}
}

func TestGemini_DefaultEndpoint(t *testing.T) {
	g := NewGemini("k", "", "gemini-1.5-flash", 0)
	want := "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"
	if g.endpoint != want {
		t.Errorf("endpoint = %q, want %q", g.endpoint, want)
	}
	if g.client.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", g.client.Timeout, DefaultTimeout)
	}
}

func TestGemini_MissingUsage(t *testing.T) {
	srv := mockServer(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	})
	defer srv.Close()

	res, err := NewGemini("k", srv.URL, "", time.Second).Summarize(context.Background(), "p")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if res.TotalTokens != 0 {
		t.Errorf("tokens = %d, want 0", res.TotalTokens)
	}
}

func TestGemini_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		malformed bool
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, false},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, true},
		{"no parts", http.StatusOK, `{"candidates":[{"content":{"parts":[]}}]}`, true},
		{"empty text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`, true},
		{"malformed json", http.StatusOK, `{{{not json`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := mockServer(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			defer srv.Close()

			_, err := NewGemini("k", srv.URL, "", time.Second).Summarize(context.Background(), "p")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrMalformedResponse); got != tt.malformed {
				t.Errorf("errors.Is(ErrMalformedResponse) = %v, want %v (err: %v)", got, tt.malformed, err)
			}
			var se *StatusError
			if !tt.malformed && (!errors.As(err, &se) || se.Code != tt.status) {
				t.Errorf("err = %v, want StatusError %d", err, tt.status)
			}
		})
	}
}

func TestGemini_Timeout(t *testing.T) {
	srv := mockServer(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		respondGemini(w, "too late", 1)
	})
	defer srv.Close()

	_, err := NewGemini("k", srv.URL, "", 50*time.Millisecond).Summarize(context.Background(), "p")
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestOpenAI_SuccessfulResponse(t *testing.T) {
	srv := mockServer(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" || len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("request = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Résumé"}}],"usage":{"total_tokens":42}}`))
	})
	defer srv.Close()

	o := NewOpenAI("test-key", srv.URL, "gpt-4o-mini", 500, time.Second)
	res, err := o.Summarize(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if res.Text != "Résumé" || res.TotalTokens != 42 {
		t.Errorf("result = %+v", res)
	}
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	srv := mockServer(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	defer srv.Close()

	_, err := NewOpenAI("k", srv.URL, "m", 0, time.Second).Summarize(context.Background(), "p")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestOpenAI_Unauthorized(t *testing.T) {
	srv := mockServer(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer srv.Close()

	_, err := NewOpenAI("bad", srv.URL, "m", 0, time.Second).Summarize(context.Background(), "p")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("err = %v, want StatusError 401", err)
	}
	if se.Error() != "api returned status 401" {
		t.Errorf("message = %q", se.Error())
	}
}

func TestOpenAI_CanceledContext(t *testing.T) {
	srv := mockServer(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"x"}}]}`))
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewOpenAI("k", srv.URL, "m", 0, time.Second).Summarize(ctx, "p"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestHeuristic_CountsChangedLines(t *testing.T) {
	prompt := strings.Join([]string{
		"Context:",
		"+Article 1: Foo Bar.",
		"-Article 1: Foo.",
		"+Article 2: Nouveau.",
		"+++ b/file",
		"--- a/file",
		"Question: ...",
	}, "\n")

	res, err := Heuristic{}.Summarize(context.Background(), prompt)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	want := "Ajouts: 2, suppressions: 1\n+Article 1: Foo Bar.\n+Article 2: Nouveau.\n-Article 1: Foo."
	if res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}
	if res.TotalTokens != 0 {
		t.Errorf("tokens = %d, want 0", res.TotalTokens)
	}
}

func TestHeuristic_DeduplicatesAndCaps(t *testing.T) {
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, "+même ligne", "+ligne "+itoa(i))
	}
	res, _ := Heuristic{}.Summarize(context.Background(), strings.Join(lines, "\n"))
	got := strings.Split(res.Text, "\n")
	if got[0] != "Ajouts: 11, suppressions: 0" {
		t.Errorf("header = %q", got[0])
	}
	if len(got) != 1+maxQuoted {
		t.Errorf("quoted %d lines, want %d", len(got)-1, maxQuoted)
	}
}

func TestHeuristic_SummarizeContextIgnoresTemplate(t *testing.T) {
	blob := "+Article 2: Nouveau.\n-Article 2: Ancien."
	prompt := "Pour chaque changement, indique :\n- Les articles impactés\n- Le type de changement\n\n" + blob

	res, err := Heuristic{}.SummarizeContext(context.Background(), prompt, blob)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	want := "Ajouts: 1, suppressions: 1\n+Article 2: Nouveau.\n-Article 2: Ancien."
	if res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}

	whole, _ := Heuristic{}.Summarize(context.Background(), prompt)
	if !strings.HasPrefix(whole.Text, "Ajouts: 1, suppressions: 3") {
		t.Errorf("whole-prompt text = %q", whole.Text)
	}
}

func TestHeuristic_NoChanges(t *testing.T) {
	res, _ := Heuristic{}.Summarize(context.Background(), "rien ici")
	if res.Text != noChangeText {
		t.Errorf("text = %q", res.Text)
	}
}

func TestShorten(t *testing.T) {
	if got := shorten("court", 10); got != "court" {
		t.Errorf("got %q", got)
	}
	if got := shorten("une phrase bien trop longue", 12); got != "une phrase..." {
		t.Errorf("got %q", got)
	}
	if got := shorten("ééééééé", 3); got != "ééé..." {
		t.Errorf("got %q", got)
	}
}
