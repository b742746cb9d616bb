package ledger

import (
	"testing"

	"gitledger/pkg/types"

	"github.com/stretchr/testify/assert"
)

const validRef = types.Hash("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")

func TestTx_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tx      Tx
		wantErr bool
	}{
		{"ok", Tx{Key: []byte("k"), ContentRef: validRef, Signer: "alice"}, false},
		{"empty key", Tx{ContentRef: validRef, Signer: "alice"}, true},
		{"bad ref", Tx{Key: []byte("k"), ContentRef: "abc", Signer: "alice"}, true},
		{"no signer", Tx{Key: []byte("k"), ContentRef: validRef}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTx)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEvents_Minted(t *testing.T) {
	events := Events{Items: []Event{
		{Kind: EventTxFinalized},
		{Kind: EventRecordMinted, Key: []byte("k"), Record: 7},
	}}

	ev, ok := events.Minted()
	assert.True(t, ok)
	assert.Equal(t, types.RecordID(7), ev.Record)

	_, ok = Events{Items: []Event{{Kind: EventTxFinalized}}}.Minted()
	assert.False(t, ok)
}

func TestCurrent_IgnoresStagedRecords(t *testing.T) {
	records := []Record{
		{ID: 9, Key: []byte("RepoData"), Current: true},
		{ID: 3, Key: []byte("other"), Current: true},
		{ID: 5, Key: []byte("RepoData")},
		{ID: 12, Key: []byte("RepoData"), Current: true},
	}

	r, ok := Current(records, []byte("RepoData"))
	assert.True(t, ok)
	assert.Equal(t, types.RecordID(9), r.ID)

	_, ok = Current(records, []byte("missing"))
	assert.False(t, ok)

	// 只有 staged 记录时没有当前记录
	_, ok = Current([]Record{{ID: 1, Key: []byte("RepoData")}}, []byte("RepoData"))
	assert.False(t, ok)
}

func TestSortRecords(t *testing.T) {
	records := []Record{{ID: 3}, {ID: 1}, {ID: 2}}
	SortRecords(records)
	assert.Equal(t, []types.RecordID{1, 2, 3}, []types.RecordID{records[0].ID, records[1].ID, records[2].ID})
}
