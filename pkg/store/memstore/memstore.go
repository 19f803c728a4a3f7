// Package memstore is an in-process document collection implementing
// store.Store. It backs the test suites and the memory:// scheme, and keeps
// counters of every dial, count, cursor open and cursor close so callers can
// check that resources are released.
//
// Filters support top-level field equality and the $eq, $ne, $gt, $gte, $lt,
// $lte and $mod operators on numbers. Sort supports a single field.
package memstore

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/ajitpratap0/mongosplit/pkg/connector/registry"
	"github.com/ajitpratap0/mongosplit/pkg/errors"
	"github.com/ajitpratap0/mongosplit/pkg/store"
)

// Stats are cumulative counters of a Dataset
type Stats struct {
	Dials         int64
	Disconnects   int64
	Counts        int64
	CursorsOpened int64
	CursorsClosed int64
}

// Dataset is a collection of documents in natural (insertion) order.
type Dataset struct {
	mu   sync.RWMutex
	docs []bson.Raw

	dials         atomic.Int64
	disconnects   atomic.Int64
	counts        atomic.Int64
	cursorsOpened atomic.Int64
	cursorsClosed atomic.Int64

	faultMu         sync.RWMutex
	dialErr         error
	countErr        error
	findErr         error
	cursorFailAfter int
	cursorErr       error
}

// NewDataset creates a dataset holding docs. Each doc must marshal to a
// BSON document (bson.M, bson.D, structs, maps).
func NewDataset(docs ...interface{}) (*Dataset, error) {
	d := &Dataset{cursorFailAfter: -1}
	if err := d.Insert(docs...); err != nil {
		return nil, err
	}
	return d, nil
}

// Insert appends docs to the collection
func (d *Dataset) Insert(docs ...interface{}) error {
	raws := make([]bson.Raw, 0, len(docs))
	for _, doc := range docs {
		raw, err := bson.Marshal(doc)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "document does not marshal to BSON")
		}
		raws = append(raws, raw)
	}

	d.mu.Lock()
	d.docs = append(d.docs, raws...)
	d.mu.Unlock()
	return nil
}

// DeleteFirst removes the first n documents in natural order
func (d *Dataset) DeleteFirst(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n > len(d.docs) {
		n = len(d.docs)
	}
	d.docs = append([]bson.Raw(nil), d.docs[n:]...)
}

// Len returns the number of documents
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs)
}

// Stats returns a snapshot of the counters
func (d *Dataset) Stats() Stats {
	return Stats{
		Dials:         d.dials.Load(),
		Disconnects:   d.disconnects.Load(),
		Counts:        d.counts.Load(),
		CursorsOpened: d.cursorsOpened.Load(),
		CursorsClosed: d.cursorsClosed.Load(),
	}
}

// FailDial makes subsequent dials fail with err (nil clears it)
func (d *Dataset) FailDial(err error) {
	d.faultMu.Lock()
	d.dialErr = err
	d.faultMu.Unlock()
}

// FailCount makes subsequent counts fail with err (nil clears it)
func (d *Dataset) FailCount(err error) {
	d.faultMu.Lock()
	d.countErr = err
	d.faultMu.Unlock()
}

// FailFind makes subsequent finds fail with err (nil clears it)
func (d *Dataset) FailFind(err error) {
	d.faultMu.Lock()
	d.findErr = err
	d.faultMu.Unlock()
}

// FailCursorAfter makes cursors opened from now on stop with err after
// yielding n documents. A negative n clears it.
func (d *Dataset) FailCursorAfter(n int, err error) {
	d.faultMu.Lock()
	d.cursorFailAfter = n
	d.cursorErr = err
	d.faultMu.Unlock()
}

// Dial opens a connection to the dataset. It has the store.Dialer signature.
func (d *Dataset) Dial(ctx context.Context, _ store.Target) (store.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "dial cancelled")
	}

	d.faultMu.RLock()
	dialErr := d.dialErr
	d.faultMu.RUnlock()
	if dialErr != nil {
		return nil, errors.Wrap(dialErr, errors.ErrorTypeConnection, "failed to connect to memory store")
	}

	d.dials.Add(1)
	return &conn{ds: d}, nil
}

type conn struct {
	ds     *Dataset
	closed atomic.Bool
}

func (c *conn) Count(ctx context.Context, filter interface{}) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}

	c.ds.faultMu.RLock()
	countErr := c.ds.countErr
	c.ds.faultMu.RUnlock()
	if countErr != nil {
		return 0, errors.Wrap(countErr, errors.ErrorTypeConnection, "count failed")
	}

	matched, err := c.ds.match(filter)
	if err != nil {
		return 0, err
	}
	c.ds.counts.Add(1)
	return int64(len(matched)), nil
}

func (c *conn) Find(ctx context.Context, filter interface{}, offset, limit int64, opts store.FindOptions) (store.Cursor, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, errors.New(errors.ErrorTypeInternal, "find window must be positive").
			WithDetail("limit", limit)
	}
	if opts.Projection != nil {
		return nil, errors.New(errors.ErrorTypeQuery, "projection is not supported by the memory store")
	}

	c.ds.faultMu.RLock()
	findErr, failAfter, cursorErr := c.ds.findErr, c.ds.cursorFailAfter, c.ds.cursorErr
	c.ds.faultMu.RUnlock()
	if findErr != nil {
		return nil, errors.Wrap(findErr, errors.ErrorTypeConnection, "find failed")
	}

	matched, err := c.ds.match(filter)
	if err != nil {
		return nil, err
	}
	if opts.Sort != nil {
		if err := sortDocs(matched, opts.Sort); err != nil {
			return nil, err
		}
	}

	if offset > int64(len(matched)) {
		offset = int64(len(matched))
	}
	end := offset + limit
	if end > int64(len(matched)) {
		end = int64(len(matched))
	}

	c.ds.cursorsOpened.Add(1)
	return &cursor{
		ds:        c.ds,
		docs:      matched[offset:end],
		failAfter: failAfter,
		failErr:   cursorErr,
	}, nil
}

func (c *conn) Close(_ context.Context) error {
	if c.closed.CompareAndSwap(false, true) {
		c.ds.disconnects.Add(1)
	}
	return nil
}

func (c *conn) check(ctx context.Context) error {
	if c.closed.Load() {
		return errors.New(errors.ErrorTypeConnection, "client is disconnected")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "operation cancelled")
	}
	return nil
}

type cursor struct {
	ds        *Dataset
	docs      []bson.Raw
	pos       int
	current   bson.Raw
	err       error
	failAfter int
	failErr   error
	closed    bool
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.closed || c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.failAfter >= 0 && c.pos == c.failAfter {
		c.err = c.failErr
		return false
	}
	if c.pos >= len(c.docs) {
		c.current = nil
		return false
	}
	c.current = c.docs[c.pos]
	c.pos++
	return true
}

func (c *cursor) Decode(v interface{}) error {
	if c.current == nil {
		return errors.New(errors.ErrorTypeInternal, "no current document")
	}
	return bson.Unmarshal(c.current, v)
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close(_ context.Context) error {
	if !c.closed {
		c.closed = true
		c.ds.cursorsClosed.Add(1)
	}
	return nil
}

// match returns the documents matching filter in natural order
func (d *Dataset) match(filter interface{}) ([]bson.Raw, error) {
	conds, err := toD(filter)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]bson.Raw, 0, len(d.docs))
	for _, doc := range d.docs {
		ok, err := matches(doc, conds)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func toD(v interface{}) (bson.D, error) {
	if v == nil {
		return nil, nil
	}
	if d, ok := v.(bson.D); ok {
		return d, nil
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "filter is not a document")
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "filter is not a document")
	}
	return d, nil
}

func matches(doc bson.Raw, conds bson.D) (bool, error) {
	for _, cond := range conds {
		if strings.HasPrefix(cond.Key, "$") {
			return false, errors.New(errors.ErrorTypeQuery, "unsupported top-level operator "+cond.Key)
		}
		field, err := doc.LookupErr(strings.Split(cond.Key, ".")...)
		present := err == nil

		ops, isOps := operators(cond.Value)
		if !isOps {
			if !present || !equal(field, cond.Value) {
				return false, nil
			}
			continue
		}
		for _, op := range ops {
			ok, err := apply(op, field, present)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

// operators returns v as an operator document when all its keys start with $
func operators(v interface{}) (bson.D, bool) {
	var d bson.D
	switch t := v.(type) {
	case bson.D:
		d = t
	case bson.M:
		for k, val := range t {
			d = append(d, bson.E{Key: k, Value: val})
		}
	default:
		return nil, false
	}
	if len(d) == 0 {
		return nil, false
	}
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return nil, false
		}
	}
	return d, true
}

func apply(op bson.E, field bson.RawValue, present bool) (bool, error) {
	switch op.Key {
	case "$eq":
		return present && equal(field, op.Value), nil
	case "$ne":
		return !present || !equal(field, op.Value), nil
	case "$gt", "$gte", "$lt", "$lte":
		a, okA := rawNumber(field)
		b, okB := number(op.Value)
		if !present || !okA || !okB {
			return false, nil
		}
		switch op.Key {
		case "$gt":
			return a > b, nil
		case "$gte":
			return a >= b, nil
		case "$lt":
			return a < b, nil
		default:
			return a <= b, nil
		}
	case "$mod":
		args, ok := op.Value.(bson.A)
		if !ok || len(args) != 2 {
			return false, errors.New(errors.ErrorTypeQuery, "$mod needs [divisor, remainder]")
		}
		div, okD := number(args[0])
		rem, okR := number(args[1])
		if !okD || !okR || div == 0 {
			return false, errors.New(errors.ErrorTypeQuery, "$mod arguments must be numbers")
		}
		v, okV := rawNumber(field)
		if !present || !okV {
			return false, nil
		}
		return int64(v)%int64(div) == int64(rem), nil
	default:
		return false, errors.New(errors.ErrorTypeQuery, "unsupported operator "+op.Key)
	}
}

func equal(field bson.RawValue, v interface{}) bool {
	if a, ok := rawNumber(field); ok {
		b, ok := number(v)
		return ok && a == b
	}
	t, data, err := bson.MarshalValue(v)
	if err != nil {
		return false
	}
	return field.Type == t && bytes.Equal(field.Value, data)
}

func rawNumber(v bson.RawValue) (float64, bool) {
	switch v.Type {
	case bsontype.Int32:
		return float64(v.Int32()), true
	case bsontype.Int64:
		return float64(v.Int64()), true
	case bsontype.Double:
		return v.Double(), true
	default:
		return 0, false
	}
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func sortDocs(docs []bson.Raw, spec interface{}) error {
	keys, err := toD(spec)
	if err != nil {
		return err
	}
	if len(keys) != 1 {
		return errors.New(errors.ErrorTypeQuery, "memory store sorts on exactly one field")
	}
	field := strings.Split(keys[0].Key, ".")
	dir, ok := number(keys[0].Value)
	if !ok || (dir != 1 && dir != -1) {
		return errors.New(errors.ErrorTypeQuery, "sort direction must be 1 or -1")
	}

	less := func(i, j int) bool {
		a := docs[i].Lookup(field...)
		b := docs[j].Lookup(field...)
		if x, okX := rawNumber(a); okX {
			if y, okY := rawNumber(b); okY {
				return x < y
			}
		}
		sa, _ := a.StringValueOK()
		sb, _ := b.StringValueOK()
		return sa < sb
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if dir < 0 {
			return less(j, i)
		}
		return less(i, j)
	})
	return nil
}

var (
	namedMu sync.RWMutex
	named   = make(map[string]*Dataset)
)

// Register publishes ds under name so it can be reached as memory://name
func Register(name string, ds *Dataset) {
	namedMu.Lock()
	named[name] = ds
	namedMu.Unlock()
}

// Unregister removes a published dataset
func Unregister(name string) {
	namedMu.Lock()
	delete(named, name)
	namedMu.Unlock()
}

func dialNamed(ctx context.Context, target store.Target) (store.Store, error) {
	_, rest, _ := strings.Cut(target.URI, "://")
	name, _, _ := strings.Cut(rest, "/")

	namedMu.RLock()
	ds, ok := named[name]
	namedMu.RUnlock()
	if !ok {
		return nil, errors.New(errors.ErrorTypeConnection, "no memory dataset named "+name)
	}
	return ds.Dial(ctx, target)
}

func init() {
	_ = registry.RegisterStore("memory", dialNamed)
}
