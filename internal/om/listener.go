package om

import (
	"context"
	"errors"
	"io"
)

// Object is a canonical handle returned by the singular store of its kind.
type Object interface {
	String() string
	// Release drops one store reference taken by Commit or Populate.
	Release()
}

// Desired is a candidate value built by a client. Commit resolves it to the
// canonical instance, takes a reference on it and applies the desired state.
type Desired interface {
	Commit(ctx context.Context) (Object, error)
}

// Listener drives one object kind through the registry passes.
type Listener interface {
	Name() string
	Order() Dependency
	HandlePopulate(ctx context.Context) ([]Object, error)
	HandleReplay(ctx context.Context) Report
	HandleSweep(ctx context.Context) Report
	HandleTeardown()
	Count() int
	Show(w io.Writer) error
}

// Report aggregates the per-object outcome of a replay or sweep pass.
type Report struct {
	Attempted int
	Failed    int
	Errs      []error
}

func (r *Report) Add(err error) {
	r.Attempted++
	if err != nil {
		r.Failed++
		r.Errs = append(r.Errs, err)
	}
}

func (r *Report) Merge(other Report) {
	r.Attempted += other.Attempted
	r.Failed += other.Failed
	r.Errs = append(r.Errs, other.Errs...)
}

// Err joins every recorded failure, or returns nil.
func (r Report) Err() error {
	return errors.Join(r.Errs...)
}
