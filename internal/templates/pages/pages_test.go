package pages

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/memzapp/memz/internal/templates/layouts"
)

func TestNotFoundPage(t *testing.T) {
	var buf bytes.Buffer
	if err := NotFoundPage("").Render(context.Background(), &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "404") || !strings.Contains(out, "doesn&#39;t exist") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestErrorPage_EscapesMessage(t *testing.T) {
	var buf bytes.Buffer
	if err := ErrorPage(500, "<script>x</script>").Render(context.Background(), &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "<script>x</script>") {
		t.Error("message was not escaped")
	}
	if !strings.Contains(out, "500") {
		t.Error("status code missing")
	}
}

func TestBase_ShowsFlashAndSignOut(t *testing.T) {
	ctx := layouts.SetIsAuthenticated(context.Background(), true)
	ctx = layouts.SetUserEmail(ctx, "me@example.com")
	ctx = layouts.SetFlashError(ctx, "Something broke.")

	var buf bytes.Buffer
	if err := NotFoundPage("gone").Render(ctx, &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"me@example.com", "Sign out", "Something broke.", "gone"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}
