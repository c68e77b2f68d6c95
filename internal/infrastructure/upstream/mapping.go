package upstream

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"BillWatch/internal/activity"
	"BillWatch/internal/domain"
)

var (
	idKeys         = []string{"id", "identifier", "fileNumber", "recordId"}
	titleKeys      = []string{"title", "name", "subject"}
	categoryKeys   = []string{"category", "type", "typeName"}
	statusKeys     = []string{"status", "statusName", "currentStatus"}
	sponsorKeys    = []string{"sponsor", "primarySponsor", "sponsors"}
	cosponsorKeys  = []string{"cosponsors", "coSponsors"}
	committeeKeys  = []string{"committees", "committee"}
	introducedKeys = []string{"introducedDate", "introduced", "dateIntroduced"}
	linkKeys       = []string{"link", "url", "webUrl"}
)

func mapHit(item map[string]any) domain.SearchHit {
	return domain.SearchHit{
		ID:       stringField(item, idKeys...),
		Title:    plainText(stringField(item, titleKeys...)),
		Category: stringField(item, categoryKeys...),
		Status:   stringField(item, statusKeys...),
	}
}

func mapDetail(raw map[string]any) domain.RecordDetail {
	d := domain.RecordDetail{
		ID:         stringField(raw, idKeys...),
		Title:      plainText(stringField(raw, titleKeys...)),
		Category:   stringField(raw, categoryKeys...),
		Status:     stringField(raw, statusKeys...),
		Cosponsors: stringList(raw, cosponsorKeys...),
		Committees: stringList(raw, committeeKeys...),
		Link:       stringField(raw, linkKeys...),
		Raw:        raw,
	}

	// sponsors may be a list whose head is the primary sponsor
	if sponsors := stringList(raw, sponsorKeys...); len(sponsors) > 0 {
		d.Sponsor = sponsors[0]
		if len(d.Cosponsors) == 0 && len(sponsors) > 1 {
			d.Cosponsors = sponsors[1:]
		}
	}

	for _, key := range introducedKeys {
		if t, ok := activity.ParseDate(raw[key]); ok {
			d.IntroducedAt = &t
			break
		}
	}
	return d
}

// stringField returns the first non-empty scalar under keys. Objects are
// unwrapped through their name/value/label members.
func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := scalar(obj[key]); s != "" {
			return s
		}
	}
	return ""
}

func stringList(obj map[string]any, keys ...string) []string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s := scalar(item); s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		case nil:
			continue
		default:
			if s := scalar(v); s != "" {
				return []string{s}
			}
		}
	}
	return nil
}

func scalar(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any:
		for _, key := range []string{"name", "fullName", "value", "label", "title"} {
			if s := scalar(val[key]); s != "" {
				return s
			}
		}
	}
	return ""
}

// plainText strips markup some upstream fields carry.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
