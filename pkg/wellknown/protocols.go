package wellknown

import (
	"bytes"
	"encoding/csv"
	"io"
	"log"
	"strconv"
	"strings"

	_ "embed"
)

//go:embed protocols.csv
var protocolsData string

// IP protocol numbers the classifier always understands.
const (
	TCP  uint8 = 6
	UDP  uint8 = 17
	SCTP uint8 = 132
)

var (
	protocolByName map[string]uint8
	nameByProtocol map[uint8]string
)

func init() {
	protocolByName = make(map[string]uint8)
	nameByProtocol = make(map[uint8]string)
	reader := csv.NewReader(bytes.NewBufferString(protocolsData))
	reader.TrimLeadingSpace = true
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Fatalf("Failed to read header from embedded protocols.csv: %v", err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to parse embedded protocols.csv: %v", err)
		}
		if len(record) < 2 {
			continue
		}

		num, err := strconv.ParseUint(record[0], 10, 8)
		if err != nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(record[1]))
		if name == "" {
			continue
		}
		protocolByName[name] = uint8(num)
		nameByProtocol[uint8(num)] = name

		if len(record) > 2 {
			for _, alias := range strings.Fields(record[2]) {
				protocolByName[strings.ToLower(alias)] = uint8(num)
			}
		}
	}
}

// LookupProtocol resolves a protocol name, ignoring case.
func LookupProtocol(name string) (uint8, bool) {
	num, ok := protocolByName[strings.ToLower(name)]
	return num, ok
}

// ProtocolName returns the canonical name of num, or its decimal form when
// the number is not registered.
func ProtocolName(num uint8) string {
	if name, ok := nameByProtocol[num]; ok {
		return name
	}
	return strconv.Itoa(int(num))
}
