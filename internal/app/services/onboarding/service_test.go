package onboarding

import (
	"context"
	"testing"

	"github.com/splito-labs/settlement_gateway/internal/app/storage/memory"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
)

func TestTutorialFlags(t *testing.T) {
	svc := New(memory.New())
	ctx := context.Background()

	st, err := svc.Status(ctx, "u1", "Settle-All")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Seen || st.Tutorial != "settle-all" {
		t.Fatalf("unexpected status %+v", st)
	}

	if _, err := svc.MarkSeen(ctx, "u1", "settle-all"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	st, _ = svc.Status(ctx, "u1", "settle-all")
	if !st.Seen || st.Flag == nil {
		t.Fatalf("expected seen flag, got %+v", st)
	}

	other, _ := svc.Status(ctx, "u2", "settle-all")
	if other.Seen {
		t.Fatalf("flags must be per user")
	}

	if err := svc.Reset(ctx, "u1", "settle-all"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	flags, _ := svc.List(ctx, "u1")
	if len(flags) != 0 {
		t.Fatalf("expected no flags, got %d", len(flags))
	}
}

func TestTutorialValidation(t *testing.T) {
	svc := New(memory.New())
	if _, err := svc.MarkSeen(context.Background(), "u1", "../etc"); apperr.CodeOf(err) != apperr.CodeInvalidRequest {
		t.Fatalf("expected invalid_request, got %v", err)
	}
	if _, err := svc.MarkSeen(context.Background(), "", "intro"); apperr.CodeOf(err) != apperr.CodeUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}
