package beacon

import (
	"net/http"

	"github.com/adscale-labs/convgate/internal/model"
)

// The two vendor cookie formats carrying click identifiers. Both hold the
// full click id ("<prefix><unix>.<token>") with the visit timestamp
// embedded in the middle segment.
const (
	searchCookie  = "_uclid_s" // YSS.<unix>.<token>
	displayCookie = "_uclid_d" // YDN.<unix>.<token>
)

// ExtractClickID scans the cookie store for click-identifier markers and
// selects the most recent one by embedded visit timestamp. ok=false means
// the beacon performs no network activity at all.
func ExtractClickID(cookies []*http.Cookie) (clickID string, ok bool) {
	var best string
	var bestTS int64
	for _, c := range cookies {
		if c.Name != searchCookie && c.Name != displayCookie {
			continue
		}
		if _, valid := model.ClickNetwork(c.Value); !valid {
			continue
		}
		ts, valid := model.ClickVisitTime(c.Value)
		if !valid {
			continue
		}
		if best == "" || ts.Unix() > bestTS {
			best, bestTS = c.Value, ts.Unix()
		}
	}
	return best, best != ""
}
