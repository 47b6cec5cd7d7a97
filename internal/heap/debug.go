//go:build debug

package heap

import "github.com/orizon-lang/gcx/internal/errors"

// debugEnabled gates the invariant checks that are too costly to carry in
// a release build: covered-range assertions on unsafe byte-map access,
// region word-accounting checks, and forwarding re-install checks. Build
// with -tags debug to turn them on.
const debugEnabled = true

// checkRegionAccounting panics if d's free/live/dark word counts no
// longer sum to RegionSizeWords.
func checkRegionAccounting(d *Descriptor) {
	if !d.checkAccounting() {
		panic(errors.InvariantViolation("region accounting invariant violated", map[string]interface{}{
			"freeWords": d.FreeWords(),
			"liveWords": d.LiveWords(),
			"darkWords": d.DarkWords(),
		}))
	}
}
