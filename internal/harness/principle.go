package harness

import (
	"fmt"

	"github.com/roach88/morgisync/internal/cache"
	"github.com/roach88/morgisync/internal/engine"
	"github.com/roach88/morgisync/internal/model"
)

// Principle is a property of the mirror that holds after every step,
// whatever the scenario does.
type Principle struct {
	Name  string
	Check func(s MirrorState) error
}

// MirrorState is what principles inspect.
type MirrorState struct {
	Images  []model.Image
	Visible []model.Image
	Active  string
	Detail  string
}

// PrincipleViolation is a principle that did not hold.
type PrincipleViolation struct {
	Principle string
	Err       error
}

// String implements fmt.Stringer.
func (v PrincipleViolation) String() string {
	return fmt.Sprintf("principle %q violated: %v", v.Principle, v.Err)
}

// Principles lists the checks run after every flow step.
var Principles = []Principle{
	{Name: "unique ids", Check: uniqueIDs},
	{Name: "view matches active category", Check: viewMatchesActive},
	{Name: "detail shows a live image", Check: detailIsLive},
	{Name: "archived images keep their path", Check: archivedHavePath},
	{Name: "proxy fallback is complete", Check: proxyComplete},
}

// CheckPrinciples runs every principle against the engine's current state.
func CheckPrinciples(e *engine.Engine) []PrincipleViolation {
	s := MirrorState{
		Images:  e.Images(),
		Visible: e.Visible(),
		Active:  e.ActiveCategory(),
		Detail:  e.DetailID(),
	}
	var out []PrincipleViolation
	for _, p := range Principles {
		if err := p.Check(s); err != nil {
			out = append(out, PrincipleViolation{Principle: p.Name, Err: err})
		}
	}
	return out
}

func uniqueIDs(s MirrorState) error {
	seen := make(map[string]bool, len(s.Images))
	for _, img := range s.Images {
		if seen[img.ID] {
			return fmt.Errorf("image %s appears twice", img.ID)
		}
		seen[img.ID] = true
	}
	return nil
}

// viewMatchesActive checks the visible list is the filtered mirror, in
// mirror order.
func viewMatchesActive(s MirrorState) error {
	var want []string
	for _, img := range s.Images {
		if cache.Shows(img, s.Active) {
			want = append(want, img.ID)
		}
	}
	got := cache.IDs(s.Visible)
	if len(got) != len(want) {
		return fmt.Errorf("visible %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("visible %v, want %v", got, want)
		}
	}
	return nil
}

func detailIsLive(s MirrorState) error {
	if s.Detail == "" {
		return nil
	}
	for _, img := range s.Images {
		if img.ID == s.Detail {
			if img.IsDeleted {
				return fmt.Errorf("detail view open on trashed image %s", s.Detail)
			}
			return nil
		}
	}
	return fmt.Errorf("detail view open on missing image %s", s.Detail)
}

func archivedHavePath(s MirrorState) error {
	for _, img := range s.Images {
		if img.IsSafe && img.SafePath == "" {
			return fmt.Errorf("image %s is archived without a path", img.ID)
		}
	}
	return nil
}

func proxyComplete(s MirrorState) error {
	for _, img := range s.Images {
		if img.ProxyTried && img.ProxyURL == "" {
			return fmt.Errorf("image %s tried the proxy without a proxy URL", img.ID)
		}
	}
	return nil
}
