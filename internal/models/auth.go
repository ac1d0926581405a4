package models

import "encoding/json"

// StoredAuthRecord is the per-vendor cookie+localStorage bundle captured by
// the manual login flow. At most one record exists per vendor; a new capture
// fully overwrites the prior record.
type StoredAuthRecord struct {
	VendorKey    string            `json:"-"`
	Cookies      []CookieRecord    `json:"cookies"`
	LocalStorage map[string]string `json:"localStorage"`
}

// HasCookies reports whether the record carries at least one cookie. The
// resolver treats a cookie-less record as absent and falls through to the
// secret store.
func (r *StoredAuthRecord) HasCookies() bool {
	return r != nil && len(r.Cookies) > 0
}

// UnmarshalJSON accepts both the current `{cookies, localStorage}` object
// shape and the legacy bare cookie array written by earlier releases.
func (r *StoredAuthRecord) UnmarshalJSON(data []byte) error {
	type current StoredAuthRecord
	var cur current
	if err := json.Unmarshal(data, &cur); err == nil {
		*r = StoredAuthRecord(cur)
		if r.LocalStorage == nil {
			r.LocalStorage = map[string]string{}
		}
		return nil
	}

	var legacy []CookieRecord
	if err := json.Unmarshal(data, &legacy); err != nil {
		return err
	}
	r.Cookies = legacy
	r.LocalStorage = map[string]string{}
	return nil
}
