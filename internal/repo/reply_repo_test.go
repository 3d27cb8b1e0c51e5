package repo

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/replypilot/go-reply-engine/internal/domain"
)

func TestCreateReply_AssignsDefaults(t *testing.T) {
	db := newTestDB(t, &domain.InboundReply{})

	r, err := CreateReply(db, &domain.InboundReply{
		UserID:    "u1",
		ContactID: "c1",
		Body:      "Yes, let's talk",
	})
	if err != nil {
		t.Fatalf("CreateReply: %v", err)
	}
	if r.ID == "" {
		t.Fatal("expected assigned UUID")
	}
	if r.ReceivedAt.IsZero() || r.CreatedAt.IsZero() {
		t.Fatalf("expected assigned timestamps: %+v", r)
	}
}

func TestCreateReply_KeepsCallerID(t *testing.T) {
	db := newTestDB(t, &domain.InboundReply{})

	r, err := CreateReply(db, &domain.InboundReply{
		ID:        "fixed-id",
		UserID:    "u1",
		ContactID: "c1",
		Body:      "hello",
	})
	if err != nil {
		t.Fatalf("CreateReply: %v", err)
	}
	if r.ID != "fixed-id" {
		t.Fatalf("caller-supplied id must survive, got %q", r.ID)
	}
}

func TestGetReply_ScopedToOwner(t *testing.T) {
	db := newTestDB(t, &domain.InboundReply{})

	created, err := CreateReply(db, &domain.InboundReply{UserID: "u1", ContactID: "c1", Body: "hi"})
	if err != nil {
		t.Fatalf("CreateReply: %v", err)
	}

	got, err := GetReply(db, "u1", created.ID)
	if err != nil {
		t.Fatalf("GetReply: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("unexpected reply: %+v", got)
	}

	if _, err := GetReply(db, "u2", created.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("cross-user fetch must be not-found, got %v", err)
	}
}

func TestListCandidateReplies_WindowOrderLimit(t *testing.T) {
	db := newTestDB(t, &domain.InboundReply{})
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		if _, err := CreateReply(db, &domain.InboundReply{
			UserID:     "u1",
			ContactID:  fmt.Sprintf("c%d", i),
			Body:       "hi",
			ReceivedAt: base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("CreateReply: %v", err)
		}
	}

	// Cutoff excludes the first reply.
	out, err := ListCandidateReplies(db, "u1", base.Add(30*time.Minute), 0)
	if err != nil {
		t.Fatalf("ListCandidateReplies: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 in window, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].ReceivedAt.Before(out[i-1].ReceivedAt) {
			t.Fatalf("expected oldest first: %+v", out)
		}
	}

	limited, err := ListCandidateReplies(db, "u1", base, 2)
	if err != nil {
		t.Fatalf("ListCandidateReplies: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(limited))
	}
	if limited[0].ContactID != "c0" {
		t.Fatalf("limit must keep arrival order, got %+v", limited[0])
	}
}
