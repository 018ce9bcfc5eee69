package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
	"github.com/99minutos/identity-system/internal/infrastructure/db/memory"
	"github.com/99minutos/identity-system/internal/infrastructure/security"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

// stubHasher is a fast reversible stand-in for bcrypt.
type stubHasher struct {
	hashCalls int
	hashErr   error
}

func (h *stubHasher) Hash(p string) (string, error) {
	h.hashCalls++
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "hashed:" + p, nil
}

func (h *stubHasher) Verify(p, hash string) (bool, error) {
	if !strings.HasPrefix(hash, "hashed:") {
		return false, fmt.Errorf("%w: unknown hash format", domain.ErrHashing)
	}
	return hash == "hashed:"+p, nil
}

// faultyRepo wraps the memory store and injects failures per method.
type faultyRepo struct {
	*memory.UserRepository
	findErr   error
	createErr error
}

func (r *faultyRepo) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.UserRepository.FindByUsername(ctx, username)
}

func (r *faultyRepo) Create(ctx context.Context, u *domain.User) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.UserRepository.Create(ctx, u)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

var t0 = time.Unix(1_735_000_000, 0)

type authFixture struct {
	svc    *AuthService
	repo   *memory.UserRepository
	hasher *stubHasher
	clock  *fakeClock
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	clock := &fakeClock{t: t0}
	tokens, err := security.NewJWTService([]byte("test-secret"), security.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	repo := memory.NewUserRepository()
	hasher := &stubHasher{}
	svc := NewAuthService(repo, hasher, tokens, 0, zerolog.Nop(), WithClock(clock.Now))
	return &authFixture{svc: svc, repo: repo, hasher: hasher, clock: clock}
}

func rolePtr(r domain.Role) *domain.Role { return &r }

func tokenPayload(t *testing.T, token string) map[string]any {
	t.Helper()
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments", len(parts))
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return out
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestAuthService_Register_DefaultRole(t *testing.T) {
	f := newAuthFixture(t)

	sum, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Username: "alice", Email: "alice@x.com", Password: "pw123456",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if sum.Role != domain.RoleUser {
		t.Fatalf("expected default role user, got %s", sum.Role)
	}
	if _, err := uuid.Parse(sum.UserID); err != nil {
		t.Fatalf("user id is not a uuid: %q", sum.UserID)
	}

	stored, err := f.repo.FindByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("stored user missing: %v", err)
	}
	if stored.PasswordHash == "pw123456" {
		t.Fatalf("expected password to be hashed")
	}
	if !stored.CreatedAt.Equal(t0) || !stored.UpdatedAt.Equal(t0) {
		t.Fatalf("timestamps should come from the clock: %v %v", stored.CreatedAt, stored.UpdatedAt)
	}
}

func TestAuthService_Register_ExplicitRole(t *testing.T) {
	f := newAuthFixture(t)

	sum, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Username: "root", Email: "root@x.com", Password: "pw123456", Role: rolePtr(domain.RoleAdmin),
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if sum.Role != domain.RoleAdmin {
		t.Fatalf("unexpected role: %s", sum.Role)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	cases := map[string]ports.RegisterInput{
		"missing username": {Email: "a@x.com", Password: "pw"},
		"blank username":   {Username: "   ", Email: "a@x.com", Password: "pw"},
		"missing email":    {Username: "a", Password: "pw"},
		"missing password": {Username: "a", Email: "a@x.com"},
		"long password":    {Username: "a", Email: "a@x.com", Password: strings.Repeat("p", 73)},
		"unknown role":     {Username: "a", Email: "a@x.com", Password: "pw", Role: rolePtr("root")},
	}
	for name, in := range cases {
		if _, err := f.svc.Register(ctx, in); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", name, err)
		}
	}
	if f.hasher.hashCalls != 0 {
		t.Fatalf("invalid input must not reach the hasher")
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, ports.RegisterInput{Username: "bob", Email: "bob@x.com", Password: "pw"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	f.hasher.hashCalls = 0

	_, err := f.svc.Register(ctx, ports.RegisterInput{Username: "bob", Email: "other@x.com", Password: "pw2"})
	if !errors.Is(err, domain.ErrUsernameTaken) || !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected username conflict, got %v", err)
	}
	_, err = f.svc.Register(ctx, ports.RegisterInput{Username: "robert", Email: "bob@x.com", Password: "pw2"})
	if !errors.Is(err, domain.ErrEmailTaken) || !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected email conflict, got %v", err)
	}
	if f.hasher.hashCalls != 0 {
		t.Fatalf("conflicts must be detected before hashing")
	}

	all, _ := f.repo.FindAll(ctx)
	if len(all) != 1 {
		t.Fatalf("failed registers must leave the store unchanged, got %d users", len(all))
	}
}

func TestAuthService_Register_StoreRaceIsAuthoritative(t *testing.T) {
	repo := &faultyRepo{UserRepository: memory.NewUserRepository(), createErr: domain.ErrUsernameTaken}
	tokens, _ := security.NewJWTService([]byte("s"))
	svc := NewAuthService(repo, &stubHasher{}, tokens, time.Hour, zerolog.Nop())

	_, err := svc.Register(context.Background(), ports.RegisterInput{Username: "a", Email: "a@x.com", Password: "pw"})
	if !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken from store, got %v", err)
	}
}

func TestAuthService_Register_HashFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.hasher.hashErr = fmt.Errorf("%w: boom", domain.ErrHashing)

	_, err := f.svc.Register(context.Background(), ports.RegisterInput{Username: "a", Email: "a@x.com", Password: "pw"})
	if !errors.Is(err, domain.ErrHashing) {
		t.Fatalf("expected ErrHashing, got %v", err)
	}
	if _, err := f.repo.FindByUsername(context.Background(), "a"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("nothing should be stored when hashing fails")
	}
}

func TestAuthService_Register_Concurrent(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	const n = 24
	var (
		wg   sync.WaitGroup
		errs = make([]error, n)
	)
	hasher, err := security.NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	svc := NewAuthService(f.repo, hasher, nil, time.Hour, zerolog.Nop())

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Register(ctx, ports.RegisterInput{
				Username: "shared",
				Email:    fmt.Sprintf("u%d@x.com", i),
				Password: "pw123456",
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation for losers, got %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}
	all, _ := f.repo.FindAll(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one stored user, got %d", len(all))
	}
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestAuthService_EndToEnd(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	hasher, err := security.NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	f.svc.hasher = hasher

	sum, err := f.svc.Register(ctx, ports.RegisterInput{Username: "alice", Email: "alice@x.com", Password: "pw123456"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sum.Role != domain.RoleUser {
		t.Fatalf("expected role user, got %s", sum.Role)
	}

	resp, err := f.svc.Login(ctx, "alice", "pw123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.UserID != sum.UserID || resp.Username != "alice" || resp.Role != domain.RoleUser {
		t.Fatalf("unexpected token response: %+v", resp)
	}
	if !resp.ExpiresAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("unexpected expiry: %v", resp.ExpiresAt)
	}

	payload := tokenPayload(t, resp.Token)
	if payload["role"] != "user" || payload["sub"] != sum.UserID {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if exp, iat := payload["exp"].(float64), payload["iat"].(float64); exp-iat != 3600 {
		t.Fatalf("expected exp - iat = 3600, got %v", exp-iat)
	}

	claims, err := f.svc.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != sum.UserID || claims.Role != domain.RoleUser {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := f.svc.Login(ctx, "alice", "wrongpw"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_SameErrorForUnknownUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, _ = f.svc.Register(ctx, ports.RegisterInput{Username: "dave", Email: "dave@x.com", Password: "goodpass"})

	_, wrongPass := f.svc.Login(ctx, "dave", "badpass")
	_, unknown := f.svc.Login(ctx, "ghost", "goodpass")

	if !errors.Is(wrongPass, domain.ErrInvalidCredentials) || !errors.Is(unknown, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", wrongPass, unknown)
	}
	if wrongPass.Error() != unknown.Error() || wrongPass.Error() != "invalid username or password" {
		t.Fatalf("messages must not reveal which part was wrong: %q vs %q", wrongPass, unknown)
	}
	if !errors.Is(unknown, domain.ErrAuthentication) {
		t.Fatalf("expected an authentication error")
	}
}

func TestAuthService_Login_OverlongPasswordRejected(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	hasher, err := security.NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	f.svc.hasher = hasher

	pw := strings.Repeat("a", 72)
	if _, err := f.svc.Register(ctx, ports.RegisterInput{Username: "bob", Email: "bob@x.com", Password: pw}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.svc.Login(ctx, "bob", pw); err != nil {
		t.Fatalf("login with exact password: %v", err)
	}
	if _, err := f.svc.Login(ctx, "bob", pw+"EXTRA"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_TrimsUsername(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, ports.RegisterInput{Username: " alice", Email: "alice@x.com", Password: "pw123456"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, name := range []string{"alice", " alice", "  alice  "} {
		if _, err := f.svc.Login(ctx, name, "pw123456"); err != nil {
			t.Fatalf("login as %q: %v", name, err)
		}
	}
	if _, err := f.svc.Login(ctx, "   ", "pw123456"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for blank username, got %v", err)
	}
}

func TestAuthService_Login_RepositoryFailure(t *testing.T) {
	boom := fmt.Errorf("%w: connection refused", domain.ErrRepository)
	repo := &faultyRepo{UserRepository: memory.NewUserRepository(), findErr: boom}
	tokens, _ := security.NewJWTService([]byte("s"))
	svc := NewAuthService(repo, &stubHasher{}, tokens, time.Hour, zerolog.Nop())

	_, err := svc.Login(context.Background(), "alice", "pw")
	if !errors.Is(err, domain.ErrRepository) {
		t.Fatalf("expected ErrRepository to surface, got %v", err)
	}
}

func TestAuthService_Login_CorruptHash(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	u := domain.NewUser("eve", "eve@x.com", "$garbage", domain.RoleUser, t0)
	if err := f.repo.Create(ctx, u); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := f.svc.Login(ctx, "eve", "pw"); !errors.Is(err, domain.ErrHashing) {
		t.Fatalf("expected ErrHashing, got %v", err)
	}
}

func TestAuthService_ValidateToken_Expiry(t *testing.T) {
	f := newAuthFixture(t)
	tokens, _ := security.NewJWTService([]byte("test-secret"), security.WithClock(f.clock.Now))
	svc := NewAuthService(f.repo, f.hasher, tokens, time.Second, zerolog.Nop(), WithClock(f.clock.Now))
	ctx := context.Background()

	_, _ = svc.Register(ctx, ports.RegisterInput{Username: "tim", Email: "tim@x.com", Password: "pw"})
	resp, err := svc.Login(ctx, "tim", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := svc.ValidateToken(resp.Token); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}
	f.clock.t = t0.Add(2 * time.Second)
	if _, err := svc.ValidateToken(resp.Token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAuthService_Authorize(t *testing.T) {
	f := newAuthFixture(t)
	if !f.svc.Authorize(domain.RoleManager, domain.RoleUser) {
		t.Fatalf("manager should reach user routes")
	}
	if f.svc.Authorize(domain.RoleManager, domain.RoleAdmin) {
		t.Fatalf("manager must not reach admin routes")
	}
}
