package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// isolateAWSEnv points the credential chain at static test values so no shared
// profile or instance metadata is consulted.
func isolateAWSEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"config", "credentials"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDTEST")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
}

func TestInvokeJSON_signedRequest(t *testing.T) {
	isolateAWSEnv(t)
	var gotPath, gotAuth, gotType string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding":[0.5,0.25]}`))
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), "us-east-1", srv.URL, 0)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	err = InvokeJSON(context.Background(), client, "amazon.titan-embed-text-v1", map[string]string{"inputText": "hello"}, &out)
	if err != nil {
		t.Fatalf("InvokeJSON: %v", err)
	}
	if gotPath != "/model/amazon.titan-embed-text-v1/invoke" {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AKIDTEST/") {
		t.Errorf("request not SigV4 signed: %q", gotAuth)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotBody["inputText"] != "hello" {
		t.Errorf("body = %v", gotBody)
	}
	if len(out.Embedding) != 2 || out.Embedding[0] != 0.5 {
		t.Errorf("decoded = %v", out.Embedding)
	}
}

type failingRuntime struct{ body []byte }

func (f failingRuntime) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if f.body == nil {
		return nil, errors.New("throttled")
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func TestInvokeJSON_errors(t *testing.T) {
	var out map[string]any
	if err := InvokeJSON(context.Background(), failingRuntime{}, "m", map[string]string{}, &out); err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Errorf("invoke failure: got %v", err)
	}
	if err := InvokeJSON(context.Background(), failingRuntime{body: []byte("{")}, "m", map[string]string{}, &out); err == nil {
		t.Error("malformed response should fail")
	}
}
