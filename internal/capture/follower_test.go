package capture

import (
	"context"
	"testing"

	"github.com/jackc/pglogrepl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFollower() *Follower {
	ctx := context.Background()
	return &Follower{
		queue:     NewQueue(ctx),
		relations: make(map[uint32]*pglogrepl.RelationMessage),
	}
}

func testRelation() *pglogrepl.RelationMessage {
	return &pglogrepl.RelationMessage{
		RelationID:   1,
		Namespace:    "public",
		RelationName: "book",
		Columns: []*pglogrepl.RelationMessageColumn{
			{Name: "isbn"},
			{Name: "title"},
		},
	}
}

func tupleOf(values ...string) *pglogrepl.TupleData {
	cols := make([]*pglogrepl.TupleDataColumn, len(values))
	for i, v := range values {
		cols[i] = &pglogrepl.TupleDataColumn{DataType: 't', Data: []byte(v)}
	}
	return &pglogrepl.TupleData{Columns: cols}
}

func TestFollowerHandleInsertEmitsChangeEvent(t *testing.T) {
	f := newTestFollower()
	rel := testRelation()
	f.handle(&pglogrepl.BeginMessage{Xid: 100})
	f.handle(rel)
	f.handle(&pglogrepl.InsertMessage{RelationID: rel.RelationID, Tuple: tupleOf("978-1", "Go")})

	events := f.queue.Drain(1)
	require.Len(t, events, 1)
	assert.Equal(t, int64(100), events[0].Xmin)
	assert.Equal(t, "INSERT", events[0].Op)
	assert.Equal(t, "978-1", events[0].New["isbn"])
	assert.Equal(t, "Go", events[0].New["title"])
}

func TestFollowerHandleDeleteCarriesOldTuple(t *testing.T) {
	f := newTestFollower()
	rel := testRelation()
	f.handle(&pglogrepl.BeginMessage{Xid: 7})
	f.handle(rel)
	f.handle(&pglogrepl.DeleteMessage{RelationID: rel.RelationID, OldTuple: tupleOf("978-1", "Go")})

	events := f.queue.Drain(1)
	require.Len(t, events, 1)
	assert.Equal(t, "DELETE", events[0].Op)
	assert.Nil(t, events[0].New)
	assert.Equal(t, "978-1", events[0].Old["isbn"])
}

func TestFollowerHandleTruncateEmitsOneEventPerRelation(t *testing.T) {
	f := newTestFollower()
	rel := testRelation()
	f.handle(&pglogrepl.BeginMessage{Xid: 3})
	f.handle(rel)
	f.handle(&pglogrepl.TruncateMessage{RelationIDs: []uint32{rel.RelationID}})

	events := f.queue.Drain(1)
	require.Len(t, events, 1)
	assert.Equal(t, "TRUNCATE", events[0].Op)
	assert.Equal(t, "book", events[0].Table)
}

func TestFollowerHandleSkipsUnchangedToastColumns(t *testing.T) {
	f := newTestFollower()
	rel := testRelation()
	f.handle(&pglogrepl.BeginMessage{Xid: 1})
	f.handle(rel)

	tuple := &pglogrepl.TupleData{Columns: []*pglogrepl.TupleDataColumn{
		{DataType: 't', Data: []byte("978-1")},
		{DataType: 'u'},
	}}
	f.handle(&pglogrepl.UpdateMessage{RelationID: rel.RelationID, NewTuple: tuple})

	events := f.queue.Drain(1)
	require.Len(t, events, 1)
	_, ok := events[0].New["title"]
	assert.False(t, ok)
}
