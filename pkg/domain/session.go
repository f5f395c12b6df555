package domain

import "encoding/json"

// Session is the shared record pairing a host and a guest under one code.
// An empty Host or Guest means the role is vacant.
type Session struct {
	Code   string
	Host   string
	Guest  string
	Offers []Offer

	// Version counts successful saves. Only stores running with optimistic
	// concurrency read it; otherwise it is carried along unchanged.
	Version int64
}

// NewSession creates a session with the given client as host.
func NewSession(code, host string) *Session {
	return &Session{
		Code:   code,
		Host:   host,
		Offers: []Offer{},
	}
}

// HasRole reports whether clientID currently holds the host or guest role.
func (s *Session) HasRole(clientID string) bool {
	if s == nil || clientID == "" {
		return false
	}
	return s.Host == clientID || s.Guest == clientID
}

// Full reports whether both roles are occupied.
func (s *Session) Full() bool {
	return s != nil && s.Host != "" && s.Guest != ""
}

// Empty reports whether neither role is occupied. Empty sessions are deleted
// from the store instead of being saved.
func (s *Session) Empty() bool {
	return s == nil || (s.Host == "" && s.Guest == "")
}

// Partner returns the other occupant relative to clientID, or "" when the
// client holds no role or the other role is vacant.
func (s *Session) Partner(clientID string) string {
	if s == nil || clientID == "" {
		return ""
	}
	switch clientID {
	case s.Host:
		return s.Guest
	case s.Guest:
		return s.Host
	}
	return ""
}

// Offer returns a pointer to the offer with the given id inside s.Offers.
func (s *Session) Offer(id string) *Offer {
	if s == nil {
		return nil
	}
	for i := range s.Offers {
		if s.Offers[i].ID == id {
			return &s.Offers[i]
		}
	}
	return nil
}

// Clone returns a deep copy, so cached snapshots never alias store data.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Offers = make([]Offer, len(s.Offers))
	for i, o := range s.Offers {
		c.Offers[i] = o.Clone()
	}
	return &c
}

// sessionRecord is the persisted shape: vacant roles are JSON null.
type sessionRecord struct {
	Code    string  `json:"code"`
	Host    *string `json:"host"`
	Guest   *string `json:"guest"`
	Offers  []Offer `json:"offers"`
	Version int64   `json:"version,omitempty"`
}

// MarshalJSON encodes vacant roles as null.
func (s Session) MarshalJSON() ([]byte, error) {
	rec := sessionRecord{
		Code:    s.Code,
		Host:    nullable(s.Host),
		Guest:   nullable(s.Guest),
		Offers:  s.Offers,
		Version: s.Version,
	}
	if rec.Offers == nil {
		rec.Offers = []Offer{}
	}
	return json.Marshal(rec)
}

// UnmarshalJSON accepts null or missing roles and a missing offers list.
func (s *Session) UnmarshalJSON(data []byte) error {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	s.Code = rec.Code
	s.Host = deref(rec.Host)
	s.Guest = deref(rec.Guest)
	s.Offers = rec.Offers
	if s.Offers == nil {
		s.Offers = []Offer{}
	}
	s.Version = rec.Version
	return nil
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
