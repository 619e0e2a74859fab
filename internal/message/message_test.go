package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionContextAdvance(t *testing.T) {
	var c SessionContext

	changed := c.Advance(SlotBag{"commodity": "wheat", "horizon": "today"})
	assert.True(t, changed)
	assert.Equal(t, "wheat", c.LastCommodity)
	assert.Empty(t, c.LastCrop)

	assert.False(t, c.Advance(SlotBag{"commodity": "wheat"}))
	assert.False(t, c.Advance(nil))
	assert.Equal(t, "wheat", c.Slot("commodity"))
	assert.Empty(t, c.Slot("horizon"))
}

func TestSnapshotIsDeep(t *testing.T) {
	c := SessionContext{Pending: &PendingSlot{Intent: "best_mandi", Slots: []string{"commodity"}}}
	snap := c.Snapshot()
	snap.Pending.Slots[0] = "crop"
	snap.Pending.Intent = "x"

	assert.Equal(t, "best_mandi.commodity", c.Pending.Key())
}

func TestLocation(t *testing.T) {
	assert.Equal(t, Location{State: "gujarat", District: "rajkot"}, ParseLocation("gujarat/rajkot"))
	assert.Equal(t, Location{State: "punjab"}, ParseLocation("punjab"))

	home := Location{State: "gujarat", District: "rajkot", Taluka: "gondal"}
	assert.Equal(t, home, home.Merge(Location{}))
	assert.Equal(t, Location{State: "gujarat", District: "surat"}, home.Merge(Location{State: "gujarat", District: "surat"}))
	assert.Equal(t, Location{State: "punjab"}, home.Merge(Location{State: "punjab"}))
	assert.True(t, Location{}.IsZero())
}

func TestSlotBagString(t *testing.T) {
	assert.Equal(t, "commodity=wheat location=gujarat", SlotBag{"location": "gujarat", "commodity": "wheat"}.String())
	assert.NotNil(t, SlotBag(nil).Clone())
}
