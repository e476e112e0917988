package vote

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	in := Input{
		VoterID:    uuid.New(),
		NomineeID:  uuid.New(),
		EventID:    uuid.New(),
		PositionID: uuid.New(),
		PaymentID:  uuid.New(),
	}
	v := New(in)

	assert.NotEqual(t, uuid.Nil, v.ID)
	assert.Equal(t, in.PaymentID, v.PaymentID)
	assert.Equal(t, in.NomineeID, v.NomineeID)
	assert.False(t, v.CreatedAt.IsZero())
}

func TestSortTallies(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := Tally{NomineeID: uuid.New(), Name: "A", Votes: 3, NomineeCreatedAt: base.Add(3 * time.Hour)}
	b := Tally{NomineeID: uuid.New(), Name: "B", Votes: 5, NomineeCreatedAt: base.Add(2 * time.Hour)}
	c := Tally{NomineeID: uuid.New(), Name: "C", Votes: 3, NomineeCreatedAt: base.Add(1 * time.Hour)}

	tallies := []Tally{a, b, c}
	SortTallies(tallies)

	names := []string{tallies[0].Name, tallies[1].Name, tallies[2].Name}
	assert.Equal(t, []string{"B", "C", "A"}, names)
}

func TestSortTallies_IDBreaksFullTie(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lo := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	hi := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	tallies := []Tally{
		{NomineeID: hi, Votes: 1, NomineeCreatedAt: at},
		{NomineeID: lo, Votes: 1, NomineeCreatedAt: at},
		{NomineeID: uuid.New(), Votes: 0, NomineeCreatedAt: at.Add(-time.Hour)},
	}
	SortTallies(tallies)

	assert.Equal(t, lo, tallies[0].NomineeID)
	assert.Equal(t, hi, tallies[1].NomineeID)
	assert.Equal(t, int64(0), tallies[2].Votes)
}
