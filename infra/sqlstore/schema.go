package sqlstore

import "fmt"

func schema(d Dialect) []string {
	b := d.BoolType
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tickets (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL,
	lat DOUBLE PRECISION NOT NULL,
	lng DOUBLE PRECISION NOT NULL,
	address TEXT NOT NULL,
	phone TEXT NOT NULL,
	people_count INTEGER NOT NULL,
	note TEXT NOT NULL,
	elderly %[1]s NOT NULL,
	children %[1]s NOT NULL,
	disabled %[1]s NOT NULL,
	source TEXT NOT NULL,
	assigned_rescuer_id TEXT NOT NULL,
	version BIGINT NOT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	verified_at BIGINT,
	completed_at BIGINT
)`, b),
		`CREATE INDEX IF NOT EXISTS tickets_phone ON tickets(phone, created_at)`,
		`CREATE INDEX IF NOT EXISTS tickets_status_pos ON tickets(status, lat, lng)`,
		`CREATE TABLE IF NOT EXISTS rescuers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	phone TEXT NOT NULL,
	status TEXT NOT NULL,
	lat DOUBLE PRECISION NOT NULL,
	lng DOUBLE PRECISION NOT NULL,
	location_updated_at BIGINT NOT NULL,
	vehicle_type TEXT NOT NULL,
	vehicle_capacity INTEGER NOT NULL,
	wallet_address TEXT NOT NULL,
	rating DOUBLE PRECISION NOT NULL,
	completed_missions INTEGER NOT NULL,
	rev BIGINT NOT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS rescuers_status_pos ON rescuers(status, lat, lng)`,
	}
}
