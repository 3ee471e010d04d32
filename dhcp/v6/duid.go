package v6

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"hash/fnv"
	"net"
	"time"

	uuid "github.com/satori/go.uuid"
)

// DUID is a DHCP Unique Identifier. RFC 8415 §11 requires clients and
// servers to treat DUIDs as opaque and compare them only for equality, so
// the type is a raw byte slice with constructors for the registered
// formats.
type DUID []byte

const (
	duidTypeLLT  uint16 = 1
	duidTypeEN   uint16 = 2
	duidTypeLL   uint16 = 3
	duidTypeUUID uint16 = 4
)

// https://www.iana.org/assignments/arp-parameters
const arpHWTypeEthernet uint16 = 1

// duidBaseTime is midnight (UTC), January 1, 2000, the epoch for DUID-LLT
// timestamps (RFC 8415 §11.2).
var duidBaseTime = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewDUIDLL builds a DUID Based on Link-Layer Address (type 3).
func NewDUIDLL(hwAddr net.HardwareAddr) DUID {
	b := make([]byte, 4, 4+len(hwAddr))
	binary.BigEndian.PutUint16(b[0:2], duidTypeLL)
	binary.BigEndian.PutUint16(b[2:4], arpHWTypeEthernet)
	return append(b, hwAddr...)
}

// NewDUIDLLT builds a DUID Based on Link-Layer Address Plus Time (type 1).
func NewDUIDLLT(hwAddr net.HardwareAddr, now time.Time) DUID {
	b := make([]byte, 8, 8+len(hwAddr))
	binary.BigEndian.PutUint16(b[0:2], duidTypeLLT)
	binary.BigEndian.PutUint16(b[2:4], arpHWTypeEthernet)
	secs := now.Sub(duidBaseTime) / time.Second
	binary.BigEndian.PutUint32(b[4:8], uint32(secs))
	return append(b, hwAddr...)
}

// NewDUIDEN builds a DUID Assigned by Vendor Based on Enterprise Number
// (type 2).
func NewDUIDEN(enterprise uint32, id []byte) DUID {
	b := make([]byte, 6, 6+len(id))
	binary.BigEndian.PutUint16(b[0:2], duidTypeEN)
	binary.BigEndian.PutUint32(b[2:6], enterprise)
	return append(b, id...)
}

// NewDUIDUUID builds a DUID Based on Universally Unique Identifier
// (type 4) with a fresh random UUID.
func NewDUIDUUID() DUID {
	u := uuid.NewV4()
	b := make([]byte, 2, 18)
	binary.BigEndian.PutUint16(b[0:2], duidTypeUUID)
	return append(b, u.Bytes()...)
}

func (d DUID) Equal(other DUID) bool {
	return bytes.Equal(d, other)
}

func (d DUID) String() string {
	return hex.EncodeToString(d)
}

// IAIDForInterface derives a stable IAID from the interface hardware
// address. The same interface always maps to the same IAID, which keeps
// the identity association consistent across restarts.
func IAIDForInterface(hwAddr net.HardwareAddr) uint32 {
	h := fnv.New32a()
	h.Write(hwAddr)
	return h.Sum32()
}
