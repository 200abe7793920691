package account_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/NicolasHaas/posterchat/pkg/account"
	"github.com/NicolasHaas/posterchat/pkg/datastore"
	"github.com/NicolasHaas/posterchat/pkg/identity"
	"github.com/NicolasHaas/posterchat/pkg/model"

	"github.com/google/go-cmp/cmp"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newService(t *testing.T) (*account.Service, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	st, err := datastore.NewProviderFactoryWithClock(filepath.Join(t.TempDir(), "test.db"), c.Now)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return account.NewService(st), c
}

func signup(username string) account.SignupRequest {
	return account.SignupRequest{
		Email:           username + "@Example.COM",
		FirstName:       "Anna-Lena",
		LastName:        "van Dyke",
		Username:        username,
		Password:        "s3cret-pass",
		PasswordConfirm: "s3cret-pass",
	}
}

func mustRegister(t *testing.T, svc *account.Service, username string) *model.User {
	t.Helper()
	u, err := svc.Register(context.Background(), signup(username))
	if err != nil {
		t.Fatalf("Register(%q): %v", username, err)
	}
	return u
}

func validationFields(t *testing.T, err error) *account.ValidationError {
	t.Helper()
	var verr *account.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	return verr
}

func TestRegister(t *testing.T) {
	svc, _ := newService(t)
	u := mustRegister(t, svc, "seran1")

	if u.ID == 0 {
		t.Error("ID not set")
	}
	if u.Email != "seran1@example.com" {
		t.Errorf("Email = %q, want domain lower-cased", u.Email)
	}
	if !u.IsActive || u.IsStaff {
		t.Errorf("IsActive = %v, IsStaff = %v; want true, false", u.IsActive, u.IsStaff)
	}
	if u.PasswordHash == "s3cret-pass" {
		t.Error("password stored in clear")
	}

	got, err := svc.Profile(context.Background(), "seran1")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if got.ID != u.ID || got.FullName() != "Anna-Lena van Dyke" {
		t.Errorf("Profile = %d %q, want %d %q", got.ID, got.FullName(), u.ID, "Anna-Lena van Dyke")
	}
}

func TestRegisterCollectsFieldErrors(t *testing.T) {
	svc, _ := newService(t)

	req := account.SignupRequest{
		Email:           "not-an-email",
		FirstName:       "-Anna",
		LastName:        "Smith  Jones",
		Username:        "1user",
		Password:        "short",
		PasswordConfirm: "short",
	}
	_, err := svc.Register(context.Background(), req)
	verr := validationFields(t, err)

	want := map[string]identity.Reason{
		"email":      identity.ReasonInvalidEmail,
		"first_name": identity.ReasonLeadingOrTrailingHyphen,
		"last_name":  identity.ReasonRepeatedSpace,
		"username":   identity.ReasonStartsWithDigit,
		"password":   identity.ReasonTooShort,
	}
	if diff := cmp.Diff(want, verr.Reasons); diff != "" {
		t.Errorf("Reasons mismatch (-want +got):\n%s", diff)
	}
	if got := verr.Fields["first_name"]; got != "first_name cannot start or end with '-'." {
		t.Errorf("first_name message = %q", got)
	}
	if got := verr.Fields["username"]; got != "username cannot start with a digit." {
		t.Errorf("username message = %q", got)
	}
}

func TestRegisterUsernameTooLong(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Register(context.Background(), signup("averyverylongusername"))
	verr := validationFields(t, err)
	if got := verr.Reasons["username"]; got != identity.ReasonTooLong {
		t.Errorf("reason = %q, want too_long", got)
	}
	if got := verr.Fields["username"]; got != "username must be at most 16 characters long." {
		t.Errorf("message = %q", got)
	}
}

func TestRegisterPasswordMismatch(t *testing.T) {
	svc, _ := newService(t)

	req := signup("seran1")
	req.PasswordConfirm = "something-else"
	_, err := svc.Register(context.Background(), req)
	verr := validationFields(t, err)
	if _, ok := verr.Fields["password_confirm"]; !ok {
		t.Errorf("password_confirm not reported: %v", verr.Fields)
	}
	if _, ok := verr.Fields["password"]; ok {
		t.Errorf("password reported although long enough: %v", verr.Fields)
	}
}

func TestRegisterDuplicates(t *testing.T) {
	svc, _ := newService(t)
	mustRegister(t, svc, "seran1")

	req := signup("seran1")
	req.Email = "SERAN1@example.com"
	_, err := svc.Register(context.Background(), req)
	verr := validationFields(t, err)
	for _, field := range []string{"email", "username"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Errorf("%s not reported as taken: %v", field, verr.Fields)
		}
	}
}

func TestRegisterConcurrentSameUsername(t *testing.T) {
	svc, _ := newService(t)
	const n = 8

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := signup("sameuser")
			req.Email = "sameuser" + string(rune('a'+i)) + "@example.com"
			_, errs[i] = svc.Register(context.Background(), req)
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		var verr *account.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("Register = %v, want *ValidationError", err)
			continue
		}
		if _, ok := verr.Fields["username"]; !ok {
			t.Errorf("username not reported as taken: %v", verr.Fields)
		}
	}
	if created != 1 {
		t.Errorf("created %d users, want 1", created)
	}
}

func TestCreateSuperuser(t *testing.T) {
	svc, _ := newService(t)

	u, err := svc.CreateSuperuser(context.Background(), signup("admin"))
	if err != nil {
		t.Fatalf("CreateSuperuser: %v", err)
	}
	if !u.IsStaff {
		t.Error("superuser is not staff")
	}
}

func TestValidateField(t *testing.T) {
	tests := []struct {
		field  string
		value  string
		reason identity.Reason
		ok     bool
	}{
		{"name", "Mary Jane", identity.ReasonNone, true},
		{"first_name", "Mary--Jane", identity.ReasonRepeatedHyphen, true},
		{"username", "us_ers", identity.ReasonNone, true},
		{"username", "abcdefghijklmnopq", identity.ReasonTooLong, true},
		{"email", "a@b.co", identity.ReasonNone, true},
		{"password", "whatever", identity.ReasonNone, false},
	}
	for _, tc := range tests {
		t.Run(tc.field+"/"+tc.value, func(t *testing.T) {
			res, ok := account.ValidateField(tc.field, tc.value)
			if ok != tc.ok || res.Reason != tc.reason {
				t.Fatalf("ValidateField(%q, %q) = %q, %v; want %q, %v", tc.field, tc.value, res.Reason, ok, tc.reason, tc.ok)
			}
			if ok && !res.Valid() && res.Field != tc.field {
				t.Errorf("Field = %q, want %q", res.Field, tc.field)
			}
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	mustRegister(t, svc, "seran1")

	first, desc := "Mary Jane", "Poster enthusiast."
	u, err := svc.UpdateProfile(ctx, "seran1", account.UpdateRequest{FirstName: &first, Description: &desc})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.FirstName != "Mary Jane" || u.LastName != "van Dyke" {
		t.Errorf("names = %q %q", u.FirstName, u.LastName)
	}

	bad := " Mary"
	_, err = svc.UpdateProfile(ctx, "seran1", account.UpdateRequest{FirstName: &bad})
	verr := validationFields(t, err)
	if got := verr.Reasons["first_name"]; got != identity.ReasonLeadingOrTrailingSpace {
		t.Errorf("reason = %q, want leading_or_trailing_space", got)
	}

	got, err := svc.Profile(ctx, "seran1")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if got.FirstName != "Mary Jane" || got.Description != "Poster enthusiast." {
		t.Errorf("stored profile = %q / %q", got.FirstName, got.Description)
	}

	if _, err := svc.UpdateProfile(ctx, "nobody", account.UpdateRequest{}); !errors.Is(err, account.ErrUserNotFound) {
		t.Errorf("UpdateProfile(nobody) = %v, want ErrUserNotFound", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, c := newService(t)
	ctx := context.Background()
	u := mustRegister(t, svc, "seran1")

	for _, creds := range [][2]string{
		{"seran1@example.com", "wrong-password"},
		{"nobody@example.com", "s3cret-pass"},
	} {
		if _, _, err := svc.Authenticate(ctx, creds[0], creds[1]); !errors.Is(err, account.ErrInvalidCredentials) {
			t.Errorf("Authenticate(%q) = %v, want ErrInvalidCredentials", creds[0], err)
		}
	}

	token, authed, err := svc.Authenticate(ctx, "Seran1@EXAMPLE.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if authed.ID != u.ID {
		t.Errorf("authenticated user %d, want %d", authed.ID, u.ID)
	}

	who, err := svc.UserForToken(ctx, token)
	if err != nil || who == nil || who.ID != u.ID {
		t.Fatalf("UserForToken = %v, %v; want user %d", who, err, u.ID)
	}
	if who, err := svc.UserForToken(ctx, ""); err != nil || who != nil {
		t.Errorf("UserForToken(\"\") = %v, %v; want nil, nil", who, err)
	}

	c.now = c.now.Add(account.SessionLifetime + time.Minute)
	if who, err := svc.UserForToken(ctx, token); err != nil || who != nil {
		t.Errorf("expired session resolved to %v, %v", who, err)
	}
}

func TestLogoutAndDeactivate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	u := mustRegister(t, svc, "seran1")

	login := func() string {
		t.Helper()
		token, _, err := svc.Authenticate(ctx, "seran1@example.com", "s3cret-pass")
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		return token
	}

	token := login()
	if err := svc.Logout(ctx, token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if who, err := svc.UserForToken(ctx, token); err != nil || who != nil {
		t.Errorf("token valid after logout: %v, %v", who, err)
	}

	token = login()
	if err := svc.Deactivate(ctx, u.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if who, err := svc.UserForToken(ctx, token); err != nil || who != nil {
		t.Errorf("token valid after deactivation: %v, %v", who, err)
	}
	if _, _, err := svc.Authenticate(ctx, "seran1@example.com", "s3cret-pass"); !errors.Is(err, account.ErrInactive) {
		t.Errorf("Authenticate(inactive) = %v, want ErrInactive", err)
	}
	if _, err := svc.Profile(ctx, "seran1"); !errors.Is(err, account.ErrUserNotFound) {
		t.Errorf("Profile(inactive) = %v, want ErrUserNotFound", err)
	}
}

func TestSetAvatar(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	u := mustRegister(t, svc, "seran1")

	prev, err := svc.SetAvatar(ctx, u.ID, "avatar_images/abc.png")
	if err != nil {
		t.Fatalf("SetAvatar: %v", err)
	}
	if prev != model.DefaultAvatar {
		t.Errorf("previous = %q, want %q", prev, model.DefaultAvatar)
	}

	prev, err = svc.SetAvatar(ctx, u.ID, "avatar_images/def.png")
	if err != nil {
		t.Fatalf("SetAvatar: %v", err)
	}
	if prev != "avatar_images/abc.png" {
		t.Errorf("previous = %q, want avatar_images/abc.png", prev)
	}

	got, err := svc.Profile(ctx, "seran1")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if got.Avatar != "avatar_images/def.png" {
		t.Errorf("Avatar = %q", got.Avatar)
	}

	if _, err := svc.SetAvatar(ctx, 9999, "x.png"); !errors.Is(err, account.ErrUserNotFound) {
		t.Errorf("SetAvatar(unknown) = %v, want ErrUserNotFound", err)
	}
}
