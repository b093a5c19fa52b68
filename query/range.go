package query

// Range is the window of results to return.
type Range struct {
	Offset uint32
	Limit  uint32
}

// Range sets the result window. offset and limit are checked independently;
// if either is invalid the window falls back to DefaultRange.
func (def *Def) Range(offset, limit int64) *Def {
	ok := true
	if offset < 0 || offset > MaxID {
		def.addError(RangeInvalidOffset, offset)
		ok = false
	}
	if limit < 1 || limit > MaxID {
		def.addError(RangeInvalidLimit, limit)
		ok = false
	}
	if !ok {
		def.Window = DefaultRange
		return def
	}
	def.Window = Range{Offset: uint32(offset), Limit: uint32(limit)}
	return def
}
