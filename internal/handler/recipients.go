package handler

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mailroom/internal/bulk"
)

var recipientKeyRe = regexp.MustCompile(`^recipients\[(\d+)\]\[(name|email)\]$`)

// ParseRecipients converts indexed recipients[n][name|email] form keys into
// an ordered, typed recipient list. Keys that start with "recipients[" but
// do not match the pattern, and indices missing either field, reject the
// whole request rather than being silently skipped.
func ParseRecipients(form url.Values) ([]bulk.Recipient, error) {
	byIndex := make(map[int]*bulk.Recipient)
	var indices []int

	for key, values := range form {
		if !strings.HasPrefix(key, "recipients[") {
			continue
		}
		m := recipientKeyRe.FindStringSubmatch(key)
		if m == nil {
			return nil, fmt.Errorf("malformed recipient field %q", key)
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("malformed recipient index in %q", key)
		}

		rec := byIndex[idx]
		if rec == nil {
			rec = &bulk.Recipient{}
			byIndex[idx] = rec
			indices = append(indices, idx)
		}

		value := ""
		if len(values) > 0 {
			value = strings.TrimSpace(values[0])
		}
		if m[2] == "name" {
			rec.Name = value
		} else {
			rec.Email = value
		}
	}

	sort.Ints(indices)

	recipients := make([]bulk.Recipient, 0, len(indices))
	for _, idx := range indices {
		rec := byIndex[idx]
		if rec.Name == "" || rec.Email == "" {
			return nil, fmt.Errorf("recipient %d is incomplete: name and email are both required", idx)
		}
		recipients = append(recipients, *rec)
	}
	return recipients, nil
}
