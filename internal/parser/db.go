package parser

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"flow-classifier/internal/model"

	_ "github.com/go-sql-driver/mysql"
)

// MariaDBLoader reads flow definitions from the cfg_flow table:
//
//	CREATE TABLE cfg_flow (
//		name VARCHAR(64) PRIMARY KEY,
//		priority INT NOT NULL,
//		ref VARCHAR(255) NOT NULL,
//		protocols LONGTEXT NULL,   -- JSON array of names
//		dst_ports VARCHAR(255) NULL,
//		src_ports VARCHAR(255) NULL,
//		dst_addrs LONGTEXT NULL,   -- JSON array of prefixes
//		src_addrs LONGTEXT NULL,   -- JSON array of prefixes
//		is_enabled VARCHAR(16) NOT NULL
//	)
type MariaDBLoader struct {
	db *sql.DB

	Flows []model.FlowDef
}

func NewMariaDBLoader(dsn string) (*MariaDBLoader, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &MariaDBLoader{db: db}, nil
}

func (l *MariaDBLoader) Close() {
	l.db.Close()
}

func (l *MariaDBLoader) Load() error {
	rows, err := l.db.Query("SELECT name, priority, ref, protocols, dst_ports, src_ports, dst_addrs, src_addrs, is_enabled FROM cfg_flow ORDER BY priority DESC, name ASC")
	if err != nil {
		return fmt.Errorf("failed to query flows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var def model.FlowDef
		var protocols, dstPorts, srcPorts, dstAddrs, srcAddrs sql.NullString
		var isEnabled string

		if err := rows.Scan(&def.Name, &def.Priority, &def.Ref, &protocols, &dstPorts, &srcPorts, &dstAddrs, &srcAddrs, &isEnabled); err != nil {
			return err
		}

		def.DstPorts = dstPorts.String
		def.SrcPorts = srcPorts.String
		def.Disabled = isEnabled != "enable"
		if def.Protocols, err = decodeList(protocols); err != nil {
			return fmt.Errorf("flow %s: protocols: %w", def.Name, err)
		}
		if def.DstAddrs, err = decodeList(dstAddrs); err != nil {
			return fmt.Errorf("flow %s: dst_addrs: %w", def.Name, err)
		}
		if def.SrcAddrs, err = decodeList(srcAddrs); err != nil {
			return fmt.Errorf("flow %s: src_addrs: %w", def.Name, err)
		}

		l.Flows = append(l.Flows, def)
	}
	return rows.Err()
}

func decodeList(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(s.String), &list); err != nil {
		return nil, err
	}
	return list, nil
}
