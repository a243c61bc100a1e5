// Package cache holds the in-memory mirror of the remote image store.
//
// Cache is the ordered image map, Registry the category list, and Visible
// derives the ordered subset shown for a category.
//
// All mutations are synchronous and total. Unknown ids are no-ops, which keeps
// the mirror convergent when the same event is delivered more than once.
//
// Cache and Registry are not safe for concurrent use. The engine serializes
// access.
package cache

import "github.com/roach88/morgisync/internal/model"

// Cache is an ordered mapping from image id to record.
//
// New ids go to the front (newest first). Updates keep their position.
type Cache struct {
	order []string
	byID  map[string]*model.Image
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{byID: make(map[string]*model.Image)}
}

// Len returns the number of records.
func (c *Cache) Len() int {
	return len(c.order)
}

// Get returns a copy of the record for id.
func (c *Cache) Get(id string) (model.Image, bool) {
	img, ok := c.byID[id]
	if !ok {
		return model.Image{}, false
	}
	return *img, true
}

// Has reports whether id is present.
func (c *Cache) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Upsert replaces the record with the same id in place, or inserts img at
// the front when the id is new.
func (c *Cache) Upsert(img model.Image) {
	if img.ID == "" {
		return
	}
	if existing, ok := c.byID[img.ID]; ok {
		*existing = img
		return
	}
	rec := img
	c.byID[img.ID] = &rec
	c.order = append([]string{img.ID}, c.order...)
}

// InsertFront removes any record with the same id, then inserts img at the
// front. Used for creation events, which may be re-delivered.
func (c *Cache) InsertFront(img model.Image) {
	if img.ID == "" {
		return
	}
	c.Remove(img.ID)
	c.Upsert(img)
}

// Remove deletes the record for id. Absent ids are ignored.
func (c *Cache) Remove(id string) {
	if _, ok := c.byID[id]; !ok {
		return
	}
	delete(c.byID, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Patch merges p into the record for id. It returns false when id is absent.
func (c *Cache) Patch(id string, p model.Patch) bool {
	img, ok := c.byID[id]
	if !ok {
		return false
	}
	p.ApplyTo(img)
	return true
}

// RemoveWhere deletes every record matching pred in one pass and returns the
// number removed.
func (c *Cache) RemoveWhere(pred func(model.Image) bool) int {
	kept := c.order[:0]
	removed := 0
	for _, id := range c.order {
		if pred(*c.byID[id]) {
			delete(c.byID, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
	return removed
}

// Count returns the number of records matching pred.
func (c *Cache) Count(pred func(model.Image) bool) int {
	n := 0
	for _, id := range c.order {
		if pred(*c.byID[id]) {
			n++
		}
	}
	return n
}

// Reconcile merges an authoritative set into the cache without deleting
// anything.
//
// Records missing locally are added at the front, keeping the remote order.
// Records already present are left untouched so local-only fields such as
// proxy fallback state survive. Local records absent from remote stay: only
// explicit remove and trash events delete. It returns the number added.
func (c *Cache) Reconcile(remote []model.Image) int {
	var missing []string
	seen := make(map[string]bool, len(remote))
	for _, img := range remote {
		if img.ID == "" || seen[img.ID] || c.Has(img.ID) {
			continue
		}
		seen[img.ID] = true
		rec := img
		c.byID[img.ID] = &rec
		missing = append(missing, img.ID)
	}
	if len(missing) == 0 {
		return 0
	}
	c.order = append(missing, c.order...)
	return len(missing)
}

// Replace discards the current contents and loads all in the given order.
// Duplicate ids keep their first occurrence.
func (c *Cache) Replace(all []model.Image) {
	c.order = make([]string, 0, len(all))
	c.byID = make(map[string]*model.Image, len(all))
	for _, img := range all {
		if img.ID == "" || c.Has(img.ID) {
			continue
		}
		rec := img
		c.byID[img.ID] = &rec
		c.order = append(c.order, img.ID)
	}
}

// Images returns a copy of every record in cache order.
func (c *Cache) Images() []model.Image {
	out := make([]model.Image, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.byID[id])
	}
	return out
}
