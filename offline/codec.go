package offline

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/capsule/xerrors"
)

func encodeRequest(req Request) ([]byte, error) {
	b, err := msgpack.Marshal(&req)
	return b, xerrors.Wrap(err, "offline: encode request")
}

func decodeRequest(b []byte) (Request, error) {
	var req Request
	if err := msgpack.Unmarshal(b, &req); err != nil {
		return Request{}, xerrors.Wrap(err, "offline: decode request")
	}
	return req, nil
}
