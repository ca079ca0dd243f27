package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pathlens/pathlens/internal/errors"
	"github.com/pathlens/pathlens/pkg/types"
)

// cell is a type-tagged serialized value. Plain JSON flattens ints to
// float64 and has no representation for timestamps or event ids, so every
// cell carries an explicit tag. Integers are encoded as decimal strings to
// survive values past 2^53.
type cell struct {
	T string `json:"t"`
	V string `json:"v,omitempty"`
}

const (
	cellNull   = "z"
	cellString = "s"
	cellInt    = "i"
	cellFloat  = "f"
	cellBool   = "b"
	cellTime   = "ts"
	cellID     = "id"
)

func encodeCell(v interface{}) (cell, error) {
	switch tv := v.(type) {
	case nil:
		return cell{T: cellNull}, nil
	case string:
		return cell{T: cellString, V: tv}, nil
	case int:
		return cell{T: cellInt, V: strconv.FormatInt(int64(tv), 10)}, nil
	case int64:
		return cell{T: cellInt, V: strconv.FormatInt(tv, 10)}, nil
	case float64:
		return cell{T: cellFloat, V: strconv.FormatFloat(tv, 'g', -1, 64)}, nil
	case bool:
		return cell{T: cellBool, V: strconv.FormatBool(tv)}, nil
	case time.Time:
		return cell{T: cellTime, V: tv.Format(time.RFC3339Nano)}, nil
	case types.EventID:
		return cell{T: cellID, V: tv.String()}, nil
	default:
		return cell{}, errors.New(errors.ErrCategoryStorage, errors.CodeSnapshotFailed,
			fmt.Sprintf("value of type %T is not serializable", v))
	}
}

func decodeCell(c cell) (interface{}, error) {
	switch c.T {
	case cellNull:
		return nil, nil
	case cellString:
		return c.V, nil
	case cellInt:
		n, err := strconv.ParseInt(c.V, 10, 64)
		if err != nil {
			return nil, err
		}
		return n, nil
	case cellFloat:
		f, err := strconv.ParseFloat(c.V, 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	case cellBool:
		b, err := strconv.ParseBool(c.V)
		if err != nil {
			return nil, err
		}
		return b, nil
	case cellTime:
		t, err := time.Parse(time.RFC3339Nano, c.V)
		if err != nil {
			return nil, err
		}
		return t, nil
	case cellID:
		id, err := types.ParseEventID(c.V)
		if err != nil {
			return nil, err
		}
		return id, nil
	default:
		return nil, errors.New(errors.ErrCategoryStorage, errors.CodeSnapshotFailed,
			fmt.Sprintf("unknown cell tag %q", c.T))
	}
}
