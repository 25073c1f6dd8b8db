package document

// Clone returns a deep copy so cached values are never shared between writers.
func (d *ExtractedDocument) Clone() *ExtractedDocument {
	if d == nil {
		return nil
	}
	out := *d
	if d.Pages != nil {
		out.Pages = make([]PageResult, len(d.Pages))
		for i, p := range d.Pages {
			out.Pages[i] = p.Clone()
		}
	}
	out.Blocks = cloneSlice(d.Blocks)
	out.Structured = d.Structured.Clone()
	out.Metrics.FailedPages = cloneSlice(d.Metrics.FailedPages)
	if d.ErrorDetails != nil {
		out.ErrorDetails = make(map[string]interface{}, len(d.ErrorDetails))
		for k, v := range d.ErrorDetails {
			out.ErrorDetails[k] = v
		}
	}
	return &out
}

func (p PageResult) Clone() PageResult {
	p.Blocks = cloneSlice(p.Blocks)
	return p
}

func (f StructuredFields) Clone() StructuredFields {
	f.Parties = cloneSlice(f.Parties)
	f.PaymentTerms = cloneSlice(f.PaymentTerms)
	if f.TotalValue != nil {
		v := *f.TotalValue
		f.TotalValue = &v
	}
	if f.Items != nil {
		items := make([]Item, len(f.Items))
		for i, it := range f.Items {
			if it.Quantity != nil {
				q := *it.Quantity
				it.Quantity = &q
			}
			if it.UnitPrice != nil {
				u := *it.UnitPrice
				it.UnitPrice = &u
			}
			items[i] = it
		}
		f.Items = items
	}
	return f
}

func (v *ValidationResult) Clone() *ValidationResult {
	if v == nil {
		return nil
	}
	out := *v
	out.ValidatedData.Structured = v.ValidatedData.Structured.Clone()
	out.ValidatedData.Blocks = cloneSlice(v.ValidatedData.Blocks)
	out.Metadata.Changes = Changes{
		Added:    cloneSlice(v.Metadata.Changes.Added),
		Modified: cloneSlice(v.Metadata.Changes.Modified),
		Removed:  cloneSlice(v.Metadata.Changes.Removed),
	}
	out.Metadata.ModifiedFields = cloneSlice(v.Metadata.ModifiedFields)
	return &out
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
