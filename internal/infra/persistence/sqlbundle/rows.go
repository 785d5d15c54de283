package sqlbundle

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"agritrace/internal/infra/persistence/memory"
	"agritrace/pkg/domain"
)

var (
	lotColumns = []string{
		"id", "code", "product_type", "location", "latitude", "longitude", "area_hectares",
		"harvest_date", "responsible", "organic", "certifications", "created_at", "updated_at",
	}
	transformationColumns = []string{
		"id", "lot_id", "washed_at", "wash_temperature", "wash_responsible", "packed_at",
		"package_type", "unit_count", "pack_responsible", "quality_checked_at", "quality_outcome",
		"quality_notes", "quality_responsible", "created_at", "updated_at",
	}
	logisticsColumns = []string{
		"id", "transformation_id", "guide_number", "vehicle", "driver", "min_temperature",
		"max_temperature", "avg_temperature", "departed_at", "delivered_at", "destination",
		"destination_address", "state", "trace_code", "created_at", "updated_at",
	}
)

// Tables lists the traceability tables in dependency order.
var Tables = []string{"lots", "transformations", "logistics"}

// InsertStatement builds the parameterised INSERT for table in dialect d.
func (d Dialect) InsertStatement(table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		if d == DialectPostgres {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		} else {
			placeholders[i] = "?"
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
}

func selectStatement(table string, columns []string) string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY id", strings.Join(columns, ", "), table)
}

func (d Dialect) timeArg(t time.Time) any {
	t = t.UTC()
	if d == DialectSQLite {
		return t.Format(time.RFC3339Nano)
	}
	return t
}

func floatArg(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func stringArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func (d Dialect) clear(ctx context.Context, exec Execer) error {
	if d == DialectPostgres {
		if _, err := exec.ExecContext(ctx, "TRUNCATE TABLE logistics, transformations, lots"); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
		return nil
	}
	for i := len(Tables) - 1; i >= 0; i-- {
		if _, err := exec.ExecContext(ctx, "DELETE FROM "+Tables[i]); err != nil {
			return fmt.Errorf("clear %s: %w", Tables[i], err)
		}
	}
	return nil
}

// Persist replaces the table contents with snapshot inside a single SQL
// transaction. Rows are written parents first, ordered by id.
func Persist(ctx context.Context, db *sql.DB, d Dialect, snapshot memory.Snapshot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := WriteSnapshot(ctx, tx, d, snapshot); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// WriteSnapshot clears the tables and inserts every record of snapshot.
func WriteSnapshot(ctx context.Context, exec Execer, d Dialect, snapshot memory.Snapshot) error {
	if err := d.clear(ctx, exec); err != nil {
		return err
	}
	insertLot := d.InsertStatement("lots", lotColumns)
	for _, id := range sortedKeys(snapshot.Lots) {
		l := snapshot.Lots[id]
		if _, err := exec.ExecContext(ctx, insertLot,
			l.ID, l.Code, l.ProductType, l.Location, floatArg(l.Latitude), floatArg(l.Longitude), l.AreaHectares,
			d.timeArg(l.HarvestDate), l.Responsible, l.Organic, l.Certifications,
			d.timeArg(l.CreatedAt), d.timeArg(l.UpdatedAt),
		); err != nil {
			return fmt.Errorf("insert lot %s: %w", l.Code, err)
		}
	}
	insertTransformation := d.InsertStatement("transformations", transformationColumns)
	for _, id := range sortedKeys(snapshot.Transformations) {
		t := snapshot.Transformations[id]
		if _, err := exec.ExecContext(ctx, insertTransformation,
			t.ID, t.LotID, d.timeArg(t.WashedAt), t.WashTemperature, t.WashResponsible, d.timeArg(t.PackedAt),
			t.PackageType, t.UnitCount, t.PackResponsible, d.timeArg(t.QualityCheckedAt), string(t.QualityOutcome),
			stringArg(t.QualityNotes), t.QualityResponsible, d.timeArg(t.CreatedAt), d.timeArg(t.UpdatedAt),
		); err != nil {
			return fmt.Errorf("insert transformation %s: %w", t.ID, err)
		}
	}
	insertLogistics := d.InsertStatement("logistics", logisticsColumns)
	for _, id := range sortedKeys(snapshot.Logistics) {
		l := snapshot.Logistics[id]
		if _, err := exec.ExecContext(ctx, insertLogistics,
			l.ID, l.TransformationID, l.GuideNumber, l.Vehicle, l.Driver, l.MinTemperature,
			l.MaxTemperature, l.AvgTemperature, d.timeArg(l.DepartedAt), d.timeArg(l.DeliveredAt), l.Destination,
			l.DestinationAddress, string(l.State), stringArg(l.TraceCode), d.timeArg(l.CreatedAt), d.timeArg(l.UpdatedAt),
		); err != nil {
			return fmt.Errorf("insert logistics %s: %w", l.GuideNumber, err)
		}
	}
	return nil
}

// Load reads every table into a snapshot.
func Load(ctx context.Context, q Queryer, d Dialect) (memory.Snapshot, error) {
	snapshot := memory.Snapshot{
		Lots:            map[string]domain.Lot{},
		Transformations: map[string]domain.Transformation{},
		Logistics:       map[string]domain.Logistics{},
	}
	if err := scanTable(ctx, q, "lots", lotColumns, func(rows *sql.Rows) error {
		var l domain.Lot
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&l.ID, &l.Code, &l.ProductType, &l.Location, &lat, &lng, &l.AreaHectares,
			timeValue{&l.HarvestDate}, &l.Responsible, &l.Organic, &l.Certifications,
			timeValue{&l.CreatedAt}, timeValue{&l.UpdatedAt}); err != nil {
			return err
		}
		l.Latitude = floatPtr(lat)
		l.Longitude = floatPtr(lng)
		snapshot.Lots[l.ID] = l
		return nil
	}); err != nil {
		return memory.Snapshot{}, err
	}
	if err := scanTable(ctx, q, "transformations", transformationColumns, func(rows *sql.Rows) error {
		var t domain.Transformation
		var outcome string
		var notes sql.NullString
		if err := rows.Scan(&t.ID, &t.LotID, timeValue{&t.WashedAt}, &t.WashTemperature, &t.WashResponsible,
			timeValue{&t.PackedAt}, &t.PackageType, &t.UnitCount, &t.PackResponsible, timeValue{&t.QualityCheckedAt},
			&outcome, &notes, &t.QualityResponsible, timeValue{&t.CreatedAt}, timeValue{&t.UpdatedAt}); err != nil {
			return err
		}
		if _, ok := snapshot.Lots[t.LotID]; !ok {
			return fmt.Errorf("transformation %s references unknown lot %s", t.ID, t.LotID)
		}
		t.QualityOutcome = domain.QualityOutcome(outcome)
		t.QualityNotes = stringPtr(notes)
		snapshot.Transformations[t.ID] = t
		return nil
	}); err != nil {
		return memory.Snapshot{}, err
	}
	if err := scanTable(ctx, q, "logistics", logisticsColumns, func(rows *sql.Rows) error {
		var l domain.Logistics
		var state string
		var code sql.NullString
		if err := rows.Scan(&l.ID, &l.TransformationID, &l.GuideNumber, &l.Vehicle, &l.Driver, &l.MinTemperature,
			&l.MaxTemperature, &l.AvgTemperature, timeValue{&l.DepartedAt}, timeValue{&l.DeliveredAt}, &l.Destination,
			&l.DestinationAddress, &state, &code, timeValue{&l.CreatedAt}, timeValue{&l.UpdatedAt}); err != nil {
			return err
		}
		if _, ok := snapshot.Transformations[l.TransformationID]; !ok {
			return fmt.Errorf("logistics %s references unknown transformation %s", l.ID, l.TransformationID)
		}
		l.State = domain.DeliveryState(state)
		l.TraceCode = stringPtr(code)
		snapshot.Logistics[l.ID] = l
		return nil
	}); err != nil {
		return memory.Snapshot{}, err
	}
	return snapshot, nil
}

func scanTable(ctx context.Context, q Queryer, table string, columns []string, scan func(*sql.Rows) error) error {
	rows, err := q.QueryContext(ctx, selectStatement(table, columns))
	if err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("decode %s: %w", table, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", table, err)
	}
	return nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// timeValue scans TIMESTAMPTZ/DATE values and RFC 3339 text into a UTC time.
type timeValue struct {
	t *time.Time
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02"}

func (v timeValue) Scan(src any) error {
	switch x := src.(type) {
	case nil:
		*v.t = time.Time{}
		return nil
	case time.Time:
		*v.t = x.UTC()
		return nil
	case string:
		return v.parse(x)
	case []byte:
		return v.parse(string(x))
	}
	return fmt.Errorf("cannot scan %T into time", src)
}

func (v timeValue) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*v.t = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid time %q", s)
}
