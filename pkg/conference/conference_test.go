package conference_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/NicolasHaas/posterchat/pkg/conference"
	"github.com/NicolasHaas/posterchat/pkg/datastore"
	"github.com/NicolasHaas/posterchat/pkg/model"
	"github.com/NicolasHaas/posterchat/pkg/rbac"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type recordingPublisher struct {
	mu       sync.Mutex
	comments []model.Comment
}

func (p *recordingPublisher) PublishComment(_ int64, c model.Comment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.comments = append(p.comments, c)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.comments)
}

type fixture struct {
	svc *conference.Service
	pub *recordingPublisher

	staff, alice, bobby, carol *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := datastore.NewProviderFactory(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{pub: &recordingPublisher{}}
	f.svc = conference.NewService(st, f.pub)

	mk := func(username string, staff bool) *model.User {
		u := &model.User{
			Email:     username + "@example.com",
			FirstName: "Test",
			LastName:  "User",
			Username:  username,
			IsActive:  true,
			IsStaff:   staff,
		}
		if err := st.NonTx().CreateUser(context.Background(), u); err != nil {
			t.Fatalf("CreateUser(%q): %v", username, err)
		}
		return u
	}
	f.staff = mk("admin", true)
	f.alice = mk("alice", false)
	f.bobby = mk("bobby", false)
	f.carol = mk("carol", false)
	return f
}

func (f *fixture) conference(t *testing.T, title string, public bool) *model.Conference {
	t.Helper()
	c := model.NewConference(title, "University")
	c.IsPublic = public
	if err := f.svc.Create(context.Background(), f.staff, c); err != nil {
		t.Fatalf("Create(%q): %v", title, err)
	}
	return c
}

func (f *fixture) setMembers(t *testing.T, actor *model.User, cid int64, role model.Role, usernames ...string) {
	t.Helper()
	if err := f.svc.SetMembers(context.Background(), actor, cid, role, usernames); err != nil {
		t.Fatalf("SetMembers(%s, %v): %v", role, usernames, err)
	}
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("err = %v, want %v", err, target)
	}
}

func strp(s string) *string { return &s }

func TestCreateConference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.Create(ctx, f.alice, model.NewConference("Nope", "Uni"))
	wantErr(t, err, conference.ErrStaffOnly)
	wantErr(t, err, rbac.ErrPermissionDenied)

	c := f.conference(t, "PosterCon", true)
	if c.ID == 0 {
		t.Fatal("conference ID not set")
	}

	d, err := f.svc.Get(ctx, f.staff, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(d.Members) != 1 || d.Members[0].UserID != f.staff.ID || d.Members[0].Role != model.RoleOrganizer {
		t.Errorf("members = %+v, want creator as sole organizer", d.Members)
	}

	wantErr(t, f.svc.Create(ctx, f.staff, model.NewConference("PosterCon", "Other")), conference.ErrDuplicateTitle)
	wantErr(t, f.svc.Create(ctx, f.staff, model.NewConference("", "Other")), model.ErrConferenceInvalid)
}

func TestVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pub := f.conference(t, "Open Day", true)
	priv := f.conference(t, "Closed Door", false)
	f.setMembers(t, f.staff, priv.ID, model.RoleGuest, "alice")

	tests := []struct {
		name  string
		actor *model.User
		want  []string
	}{
		{"staff", f.staff, []string{"Open Day", "Closed Door"}},
		{"member", f.alice, []string{"Open Day", "Closed Door"}},
		{"outsider", f.bobby, []string{"Open Day"}},
		{"anonymous", nil, []string{"Open Day"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			list, err := f.svc.ListVisible(ctx, tc.actor)
			if err != nil {
				t.Fatalf("ListVisible: %v", err)
			}
			var got []string
			for _, c := range list {
				got = append(got, c.Title)
			}
			if diff := cmp.Diff(tc.want, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
				t.Errorf("titles mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err := f.svc.Get(ctx, f.bobby, priv.ID)
	wantErr(t, err, conference.ErrNotFound)
	if _, err := f.svc.Get(ctx, nil, pub.ID); err != nil {
		t.Errorf("Get(public, anonymous): %v", err)
	}
	_, err = f.svc.Get(ctx, f.alice, 9999)
	wantErr(t, err, conference.ErrNotFound)
}

func TestSetMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.conference(t, "PosterCon", false)

	roles := func() map[string]model.Role {
		t.Helper()
		d, err := f.svc.Get(ctx, f.staff, c.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		out := map[string]model.Role{}
		for _, m := range d.Members {
			out[m.Username] = m.Role
		}
		return out
	}

	f.setMembers(t, f.staff, c.ID, model.RoleAttendee, "alice", "bobby", "alice")
	if diff := cmp.Diff(map[string]model.Role{
		"admin": model.RoleOrganizer,
		"alice": model.RoleAttendee,
		"bobby": model.RoleAttendee,
	}, roles()); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}

	// bobby moves up, alice leaves the attendees and so the conference.
	f.setMembers(t, f.staff, c.ID, model.RoleOrganizer, "admin", "bobby")
	f.setMembers(t, f.staff, c.ID, model.RoleAttendee, "carol")
	if diff := cmp.Diff(map[string]model.Role{
		"admin": model.RoleOrganizer,
		"bobby": model.RoleOrganizer,
		"carol": model.RoleAttendee,
	}, roles()); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}

	// A new organizer may manage members; an attendee may not.
	f.setMembers(t, f.bobby, c.ID, model.RoleGuest, "alice")
	wantErr(t, f.svc.SetMembers(ctx, f.carol, c.ID, model.RoleGuest, nil), rbac.ErrPermissionDenied)

	wantErr(t, f.svc.SetMembers(ctx, f.staff, c.ID, model.RoleGuest, []string{"ghost"}), conference.ErrUnknownUser)
	wantErr(t, f.svc.SetMembers(ctx, f.staff, c.ID, model.RoleOrganizer, nil), conference.ErrNoOrganizer)
	wantErr(t, f.svc.SetMembers(ctx, f.staff, c.ID, model.Role(42), nil), model.ErrInvalidRole)

	if got := roles()["alice"]; got != model.RoleGuest {
		t.Errorf("alice role = %v, want guest", got)
	}
}

func TestPosters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.conference(t, "PosterCon", true)
	f.setMembers(t, f.staff, c.ID, model.RoleOrganizer, "admin", "alice")
	f.setMembers(t, f.staff, c.ID, model.RoleAttendee, "bobby")

	_, err := f.svc.CreatePoster(ctx, f.bobby, c.ID, conference.PosterInput{Title: strp("Mine")})
	wantErr(t, err, rbac.ErrPermissionDenied)

	p, err := f.svc.CreatePoster(ctx, f.alice, c.ID, conference.PosterInput{Title: strp("Graphs")})
	if err != nil {
		t.Fatalf("CreatePoster: %v", err)
	}
	if diff := cmp.Diff([]int64{f.alice.ID}, p.AuthorIDs); diff != "" {
		t.Errorf("default authors (-want +got):\n%s", diff)
	}

	shared, err := f.svc.CreatePoster(ctx, f.alice, c.ID, conference.PosterInput{
		Title:   strp("Shared"),
		Authors: []string{"bobby"},
	})
	if err != nil {
		t.Fatalf("CreatePoster(shared): %v", err)
	}
	if diff := cmp.Diff([]int64{f.bobby.ID}, shared.AuthorIDs); diff != "" {
		t.Errorf("explicit authors (-want +got):\n%s", diff)
	}

	_, err = f.svc.CreatePoster(ctx, f.alice, c.ID, conference.PosterInput{Title: strp("")})
	wantErr(t, err, model.ErrPosterInvalid)
	_, err = f.svc.CreatePoster(ctx, f.alice, c.ID, conference.PosterInput{Title: strp("X"), Authors: []string{"ghost"}})
	wantErr(t, err, conference.ErrUnknownUser)

	// bobby is an attendee but authored "Shared".
	updated, err := f.svc.UpdatePoster(ctx, f.bobby, c.ID, shared.ID, conference.PosterInput{Subtitle: strp("v2")})
	if err != nil {
		t.Fatalf("UpdatePoster(author): %v", err)
	}
	if updated.Subtitle != "v2" {
		t.Errorf("Subtitle = %q, want v2", updated.Subtitle)
	}
	_, err = f.svc.UpdatePoster(ctx, f.bobby, c.ID, p.ID, conference.PosterInput{Subtitle: strp("nope")})
	wantErr(t, err, conference.ErrNotAuthor)

	if _, err := f.svc.UpdatePoster(ctx, f.alice, c.ID, p.ID, conference.PosterInput{Authors: []string{"alice", "bobby"}}); err != nil {
		t.Fatalf("UpdatePoster(authors): %v", err)
	}
	got, err := f.svc.GetPoster(ctx, nil, c.ID, p.ID)
	if err != nil {
		t.Fatalf("GetPoster: %v", err)
	}
	sortIDs := cmpopts.SortSlices(func(a, b int64) bool { return a < b })
	if diff := cmp.Diff([]int64{f.alice.ID, f.bobby.ID}, got.AuthorIDs, sortIDs); diff != "" {
		t.Errorf("replaced authors (-want +got):\n%s", diff)
	}

	list, err := f.svc.ListPosters(ctx, f.carol, c.ID)
	if err != nil {
		t.Fatalf("ListPosters: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("ListPosters = %d posters, want 2", len(list))
	}

	other := f.conference(t, "Elsewhere", true)
	_, err = f.svc.GetPoster(ctx, f.staff, other.ID, p.ID)
	wantErr(t, err, conference.ErrNotFound)
}

func TestComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.conference(t, "PosterCon", true)
	f.setMembers(t, f.staff, c.ID, model.RoleAttendee, "alice", "bobby")
	f.setMembers(t, f.staff, c.ID, model.RoleGuest, "carol")
	p, err := f.svc.CreatePoster(ctx, f.staff, c.ID, conference.PosterInput{Title: strp("Graphs")})
	if err != nil {
		t.Fatalf("CreatePoster: %v", err)
	}

	first, err := f.svc.AddComment(ctx, f.alice, c.ID, p.ID, "Nice plots!")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if !first.Active || first.Author != "alice" {
		t.Errorf("comment = %+v, want active by alice", first)
	}
	second, err := f.svc.AddComment(ctx, f.bobby, c.ID, p.ID, "Which dataset?")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	rejected := []struct {
		name  string
		actor *model.User
		body  string
		want  error
	}{
		{"guest", f.carol, "guest says hi", rbac.ErrPermissionDenied},
		{"anonymous", nil, "anonymous", rbac.ErrPermissionDenied},
		{"blank", f.alice, "   ", model.ErrCommentInvalid},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AddComment(ctx, tc.actor, c.ID, p.ID, tc.body)
			wantErr(t, err, tc.want)
		})
	}

	if n := f.pub.count(); n != 2 {
		t.Errorf("published %d comments, want 2", n)
	}

	// Only the author or an organizer may hide a comment.
	wantErr(t, f.svc.DeactivateComment(ctx, f.bobby, c.ID, p.ID, first.ID), conference.ErrNotOwnComment)
	if err := f.svc.DeactivateComment(ctx, f.bobby, c.ID, p.ID, second.ID); err != nil {
		t.Errorf("DeactivateComment(own): %v", err)
	}
	if err := f.svc.DeactivateComment(ctx, f.staff, c.ID, p.ID, first.ID); err != nil {
		t.Errorf("DeactivateComment(staff): %v", err)
	}
	wantErr(t, f.svc.DeactivateComment(ctx, f.staff, c.ID, p.ID, 9999), conference.ErrNotFound)

	comments, err := f.svc.ListComments(ctx, nil, c.ID, p.ID, nil, nil)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(comments) != 0 {
		t.Errorf("ListComments = %d, want none after deactivation", len(comments))
	}
}
