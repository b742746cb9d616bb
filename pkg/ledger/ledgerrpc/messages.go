package ledgerrpc

import (
	"gitledger/pkg/ledger"
	"gitledger/pkg/types"
)

type SubmitRequest struct {
	Container  uint32 `cbor:"container"`
	Key        []byte `cbor:"key"`
	ContentRef string `cbor:"content_ref"`
	Signer     string `cbor:"signer"`
	Staged     bool   `cbor:"staged,omitempty"`
}

type SubmitResponse struct {
	Events ledger.Events `cbor:"events"`
}

type RecordSetRequest struct {
	Container uint32 `cbor:"container"`
}

type RecordSetResponse struct {
	Records []ledger.Record `cbor:"records"`
}

type SupersedeRequest struct {
	Container   uint32  `cbor:"container"`
	Key         []byte  `cbor:"key"`
	Expected    *uint64 `cbor:"expected,omitempty"`
	Replacement uint64  `cbor:"replacement"`
}

type RetireRequest struct {
	Container uint32 `cbor:"container"`
	ID        uint64 `cbor:"id"`
}

type Empty struct{}

func (r *SubmitRequest) tx() ledger.Tx {
	return ledger.Tx{
		Container:  types.ContainerID(r.Container),
		Key:        r.Key,
		ContentRef: types.Hash(r.ContentRef),
		Signer:     r.Signer,
		Staged:     r.Staged,
	}
}

func (r *SupersedeRequest) expected() *types.RecordID {
	if r.Expected == nil {
		return nil
	}
	id := types.RecordID(*r.Expected)
	return &id
}
