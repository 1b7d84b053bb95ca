package starlark

import (
	"fmt"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// DataFrame is a column-ordered table of Starlark values. Every column has
// nrows entries. Frames are immutable from Starlark: with_column returns a
// new frame.
type DataFrame struct {
	columns []string
	data    map[string][]starlark.Value
	nrows   int
	frozen  bool
}

var (
	_ starlark.Value    = (*DataFrame)(nil)
	_ starlark.HasAttrs = (*DataFrame)(nil)
	_ starlark.Mapping  = (*DataFrame)(nil)
	_ starlark.Sequence = (*DataFrame)(nil)
)

var frameMethods = map[string]*starlark.Builtin{
	"to_records":  starlark.NewBuiltin("to_records", frameToRecords),
	"column":      starlark.NewBuiltin("column", frameColumn),
	"with_column": starlark.NewBuiltin("with_column", frameWithColumn),
	"head":        starlark.NewBuiltin("head", frameHead),
	"sum":         starlark.NewBuiltin("sum", frameSum),
	"mean":        starlark.NewBuiltin("mean", frameMean),
	"min":         starlark.NewBuiltin("min", frameMin),
	"max":         starlark.NewBuiltin("max", frameMax),
	"last":        starlark.NewBuiltin("last", frameLast),
}

// NewDataFrame builds a frame from ordered column names and equal-length
// columns.
func NewDataFrame(columns []string, data map[string][]starlark.Value) (*DataFrame, error) {
	df := &DataFrame{
		columns: append([]string(nil), columns...),
		data:    make(map[string][]starlark.Value, len(columns)),
	}
	for i, name := range columns {
		col, ok := data[name]
		if !ok {
			return nil, fmt.Errorf("DataFrame: missing column %q", name)
		}
		if _, dup := df.data[name]; dup {
			return nil, fmt.Errorf("DataFrame: duplicate column %q", name)
		}
		if i == 0 {
			df.nrows = len(col)
		} else if len(col) != df.nrows {
			return nil, fmt.Errorf("DataFrame: column %q has %d rows, want %d", name, len(col), df.nrows)
		}
		df.data[name] = col
	}
	return df, nil
}

// Columns returns the column names in order.
func (df *DataFrame) Columns() []string { return append([]string(nil), df.columns...) }

// NumRows returns the row count.
func (df *DataFrame) NumRows() int { return df.nrows }

func (df *DataFrame) String() string {
	return fmt.Sprintf("DataFrame(columns=[%s], nrows=%d)", strings.Join(df.columns, ", "), df.nrows)
}

func (df *DataFrame) Type() string { return "DataFrame" }

func (df *DataFrame) Freeze() {
	if df.frozen {
		return
	}
	df.frozen = true
	for _, col := range df.data {
		for _, v := range col {
			v.Freeze()
		}
	}
}

func (df *DataFrame) Truth() starlark.Bool { return df.nrows > 0 }

func (df *DataFrame) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: DataFrame")
}

// Len and Iterate follow dict semantics: len is the column count and
// iteration yields column names.
func (df *DataFrame) Len() int { return len(df.columns) }

func (df *DataFrame) Iterate() starlark.Iterator {
	names := make([]starlark.Value, len(df.columns))
	for i, c := range df.columns {
		names[i] = starlark.String(c)
	}
	return starlark.NewList(names).Iterate()
}

// Get implements df["col"], returning the column as a new list.
func (df *DataFrame) Get(k starlark.Value) (starlark.Value, bool, error) {
	name, ok := k.(starlark.String)
	if !ok {
		return nil, false, fmt.Errorf("DataFrame index must be string, got %s", k.Type())
	}
	col, ok := df.data[string(name)]
	if !ok {
		return nil, false, nil
	}
	return starlark.NewList(append([]starlark.Value(nil), col...)), true, nil
}

func (df *DataFrame) Attr(name string) (starlark.Value, error) {
	switch name {
	case "columns":
		names := make([]starlark.Value, len(df.columns))
		for i, c := range df.columns {
			names[i] = starlark.String(c)
		}
		return starlark.NewList(names), nil
	case "nrows":
		return starlark.MakeInt(df.nrows), nil
	}
	if m, ok := frameMethods[name]; ok {
		return m.BindReceiver(df), nil
	}
	return nil, nil
}

func (df *DataFrame) AttrNames() []string {
	names := []string{"columns", "nrows"}
	names = append(names, sortedKeys(frameMethods)...)
	return names
}

// records converts the frame into an ordered list of row mappings.
func (df *DataFrame) records(c *converter) ([]any, error) {
	rows := make([]any, df.nrows)
	for i := 0; i < df.nrows; i++ {
		row := make(map[string]any, len(df.columns))
		for _, name := range df.columns {
			v, err := c.value(df.data[name][i])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, name, err)
			}
			row[name] = v
		}
		rows[i] = row
	}
	return rows, nil
}

func (df *DataFrame) column(fn, name string) ([]starlark.Value, error) {
	col, ok := df.data[name]
	if !ok {
		return nil, fmt.Errorf("%s: no column %q", fn, name)
	}
	return col, nil
}

func receiverFrame(b *starlark.Builtin) *DataFrame {
	return b.Receiver().(*DataFrame)
}

func frameToRecords(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	df := receiverFrame(b)
	rows := make([]starlark.Value, df.nrows)
	for i := 0; i < df.nrows; i++ {
		row := starlark.NewDict(len(df.columns))
		for _, name := range df.columns {
			if err := row.SetKey(starlark.String(name), df.data[name][i]); err != nil {
				return nil, err
			}
		}
		rows[i] = row
	}
	return starlark.NewList(rows), nil
}

func frameColumn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	col, err := receiverFrame(b).column(b.Name(), name)
	if err != nil {
		return nil, err
	}
	return starlark.NewList(append([]starlark.Value(nil), col...)), nil
}

func frameWithColumn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var values starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &name, &values); err != nil {
		return nil, err
	}
	df := receiverFrame(b)
	col, err := columnValues(thread, b.Name(), name, values, df.nrows)
	if err != nil {
		return nil, err
	}

	columns := df.Columns()
	data := make(map[string][]starlark.Value, len(columns)+1)
	for k, v := range df.data {
		data[k] = v
	}
	if _, exists := data[name]; !exists {
		columns = append(columns, name)
	}
	data[name] = col
	return NewDataFrame(columns, data)
}

func frameHead(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &n); err != nil {
		return nil, err
	}
	df := receiverFrame(b)
	if n < 0 {
		n = 0
	}
	if n > df.nrows {
		n = df.nrows
	}
	data := make(map[string][]starlark.Value, len(df.columns))
	for k, v := range df.data {
		data[k] = v[:n:n]
	}
	return NewDataFrame(df.columns, data)
}

func frameSum(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	col, err := unpackColumn(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	var acc starlark.Value = starlark.MakeInt(0)
	err = iterate(thread, starlark.Tuple(col), func(v starlark.Value) error {
		var err error
		acc, err = starlark.Binary(syntax.PLUS, acc, v)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return acc, nil
}

func frameMean(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	col, err := unpackColumn(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	xs, err := floatsOf(thread, b.Name(), col)
	if err != nil {
		return nil, err
	}
	m, err := mean(b.Name(), xs)
	if err != nil {
		return nil, err
	}
	return starlark.Float(m), nil
}

func frameMin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return frameExtreme(thread, b, args, kwargs, syntax.LT)
}

func frameMax(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return frameExtreme(thread, b, args, kwargs, syntax.GT)
}

func frameExtreme(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, op syntax.Token) (starlark.Value, error) {
	col, err := unpackColumn(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	if len(col) == 0 {
		return nil, fmt.Errorf("%s: empty column", b.Name())
	}
	best := col[0]
	err = iterate(thread, starlark.Tuple(col[1:]), func(v starlark.Value) error {
		better, err := starlark.Compare(op, v, best)
		if better {
			best = v
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return best, nil
}

func frameLast(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	col, err := unpackColumn(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	if len(col) == 0 {
		return nil, fmt.Errorf("%s: empty column", b.Name())
	}
	return col[len(col)-1], nil
}

func unpackColumn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) ([]starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	return receiverFrame(b).column(b.Name(), name)
}

// columnValues turns a list-like value into a column of nrows entries.
// Scalars are broadcast.
func columnValues(thread *starlark.Thread, fn, name string, v starlark.Value, nrows int) ([]starlark.Value, error) {
	if iterable, ok := v.(starlark.Iterable); ok && !isScalar(v) {
		var col []starlark.Value
		err := iterate(thread, iterable, func(x starlark.Value) error {
			col = append(col, x)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		if len(col) != nrows {
			return nil, fmt.Errorf("%s: column %q has %d rows, want %d", fn, name, len(col), nrows)
		}
		return col, nil
	}
	col := make([]starlark.Value, nrows)
	for i := range col {
		col[i] = v
	}
	return col, nil
}

func isScalar(v starlark.Value) bool {
	switch v.(type) {
	case starlark.String, starlark.Bytes, *starlark.Dict, *DataFrame:
		return true
	}
	return false
}

func newFrameModule(maxElements int) *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: ModuleFrame,
		Members: starlark.StringDict{
			"DataFrame":    starlark.NewBuiltin("DataFrame", frameFromColumns(maxElements)),
			"from_records": starlark.NewBuiltin("from_records", frameFromRecords(maxElements)),
		},
	}
}

// frameFromColumns implements DataFrame(data): data maps column name to a
// list or a scalar. Scalars broadcast to the longest list; a frame of
// only scalars has one row.
func frameFromColumns(maxElements int) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var data *starlark.Dict
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &data); err != nil {
			return nil, err
		}
		if data == nil {
			return NewDataFrame(nil, nil)
		}

		columns := make([]string, 0, data.Len())
		nrows := -1
		for _, item := range data.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("%s: column name must be string, got %s", b.Name(), item[0].Type())
			}
			columns = append(columns, string(key))
			if seq, ok := item[1].(starlark.Sequence); ok && !isScalar(item[1]) {
				n := seq.Len()
				if nrows >= 0 && n != nrows {
					return nil, fmt.Errorf("%s: column %q has %d rows, want %d", b.Name(), string(key), n, nrows)
				}
				nrows = n
			}
		}
		if nrows < 0 {
			nrows = 1
		}
		if len(columns)*nrows > maxElements {
			return nil, fmt.Errorf("%s: %d cells exceeds limit of %d", b.Name(), len(columns)*nrows, maxElements)
		}

		cols := make(map[string][]starlark.Value, len(columns))
		for _, item := range data.Items() {
			name := string(item[0].(starlark.String))
			col, err := columnValues(thread, b.Name(), name, item[1], nrows)
			if err != nil {
				return nil, err
			}
			cols[name] = col
		}
		return NewDataFrame(columns, cols)
	}
}

// frameFromRecords implements from_records(rows): column order follows
// first appearance; missing cells are None.
func frameFromRecords(maxElements int) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var rows *starlark.List
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &rows); err != nil {
			return nil, err
		}

		var columns []string
		seen := make(map[string]bool)
		dicts := make([]*starlark.Dict, rows.Len())
		for i := 0; i < rows.Len(); i++ {
			d, ok := rows.Index(i).(*starlark.Dict)
			if !ok {
				return nil, fmt.Errorf("%s: row %d must be dict, got %s", b.Name(), i, rows.Index(i).Type())
			}
			dicts[i] = d
			for _, k := range d.Keys() {
				key, ok := k.(starlark.String)
				if !ok {
					return nil, fmt.Errorf("%s: row %d: column name must be string, got %s", b.Name(), i, k.Type())
				}
				if !seen[string(key)] {
					seen[string(key)] = true
					columns = append(columns, string(key))
				}
			}
		}
		if len(columns)*len(dicts) > maxElements {
			return nil, fmt.Errorf("%s: %d cells exceeds limit of %d", b.Name(), len(columns)*len(dicts), maxElements)
		}

		data := make(map[string][]starlark.Value, len(columns))
		for _, name := range columns {
			col := make([]starlark.Value, len(dicts))
			for i, d := range dicts {
				v, found, err := d.Get(starlark.String(name))
				if err != nil {
					return nil, err
				}
				if !found {
					v = starlark.None
				}
				col[i] = v
			}
			data[name] = col
		}
		return NewDataFrame(columns, data)
	}
}
