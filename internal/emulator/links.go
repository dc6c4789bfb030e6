package emulator

import (
	"net/url"
	"sync"
	"time"

	"github.com/dropDatabas3/hellojohn-session/internal/identity"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

type linkRecord struct {
	Code     string
	Email    string
	IssuedAt time.Time
	Consumed bool
}

// linkStore guarda los códigos de los links de ingreso con TTL. Un código
// consumido se conserva hasta vencer para distinguir reuso de vencimiento.
type linkStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	base    string
	codes   *gocache.Cache
	byEmail map[string]string
}

func newLinkStore(base string, ttl time.Duration) *linkStore {
	return &linkStore{
		ttl:     ttl,
		base:    base,
		codes:   gocache.New(ttl, 2*ttl),
		byEmail: map[string]string{},
	}
}

// issue emite un link nuevo para email e invalida el anterior.
func (s *linkStore) issue(email string, now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byEmail[email]; ok {
		s.codes.Delete(prev)
	}
	code := uuid.NewString()
	s.codes.Set(code, &linkRecord{Code: code, Email: email, IssuedAt: now}, s.ttl)
	s.byEmail[email] = code
	return s.link(code)
}

func (s *linkStore) link(code string) string {
	q := url.Values{}
	q.Set("mode", "signIn")
	q.Set("oobCode", code)
	q.Set("lang", "en")
	return s.base + "?" + q.Encode()
}

// last devuelve el link vigente para email.
func (s *linkStore) last(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.byEmail[email]
	if !ok {
		return "", false
	}
	if _, alive := s.codes.Get(code); !alive {
		return "", false
	}
	return s.link(code), true
}

// check valida el código sin consumirlo.
func (s *linkStore) check(code, email string) (*linkRecord, error) {
	v, ok := s.codes.Get(code)
	if !ok {
		return nil, identity.ErrLinkExpired
	}
	rec := v.(*linkRecord)
	if rec.Consumed {
		return nil, identity.ErrLinkConsumed
	}
	if rec.Email != email {
		return nil, identity.ErrLinkMismatch
	}
	return rec, nil
}

// consume valida y marca el código como usado.
func (s *linkStore) consume(code, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.check(code, email)
	if err != nil {
		return err
	}
	rec.Consumed = true
	if s.byEmail[email] == code {
		delete(s.byEmail, email)
	}
	return nil
}

// codeFromLink extrae oobCode. Acepta el link directo o envuelto en un
// parámetro "link" (formato de dynamic links).
func codeFromLink(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	q := u.Query()
	if q.Get("mode") == "signIn" && q.Get("oobCode") != "" {
		return q.Get("oobCode"), true
	}
	if inner := q.Get("link"); inner != "" && inner != raw {
		iu, err := url.Parse(inner)
		if err != nil {
			return "", false
		}
		iq := iu.Query()
		if iq.Get("mode") == "signIn" && iq.Get("oobCode") != "" {
			return iq.Get("oobCode"), true
		}
	}
	return "", false
}
