package responselog

// rowValues lays a record out as columns in schema order, tags first.
func rowValues(schema *Schema, record *Record) ([]string, []interface{}) {
	tags, fields, _ := schema.Point(record)

	columns := make([]string, 0, len(schema.Tags)+len(schema.Fields))
	values := make([]interface{}, 0, len(schema.Tags)+len(schema.Fields))
	for _, name := range schema.Tags {
		columns = append(columns, name)
		values = append(values, tags[name])
	}
	for _, name := range schema.Fields {
		v, ok := fields[name]
		if !ok {
			continue
		}
		columns = append(columns, name)
		values = append(values, v)
	}
	return columns, values
}
