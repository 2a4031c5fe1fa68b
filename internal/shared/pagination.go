package shared

// Page bounds a listing query.
type Page struct {
	Limit  int
	Offset int
}

// DefaultPageLimit is applied when a listing omits its limit.
const DefaultPageLimit = 50

// MaxPageLimit caps any listing.
const MaxPageLimit = 500

// Normalize clamps limit and offset into the supported range.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
