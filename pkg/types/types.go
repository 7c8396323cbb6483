package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ShareProto is the file sharing protocol a share is exported with.
type ShareProto string

const (
	ProtoNFS       ShareProto = "NFS"
	ProtoCIFS      ShareProto = "CIFS"
	ProtoGlusterFS ShareProto = "GLUSTERFS"
	ProtoHDFS      ShareProto = "HDFS"
)

// Share is a provisioned network file share. Records are owned by the
// caller; drivers only read them.
type Share struct {
	ID             string            `json:"id" yaml:"id"`
	Name           string            `json:"name" yaml:"name"`
	Proto          ShareProto        `json:"share_proto" yaml:"share_proto"`
	SizeGB         int               `json:"size" yaml:"size"`
	ShareNetworkID string            `json:"share_network_id,omitempty" yaml:"share_network_id,omitempty"`
	ShareServerID  string            `json:"share_server_id,omitempty" yaml:"share_server_id,omitempty"`
	SnapshotID     string            `json:"snapshot_id,omitempty" yaml:"snapshot_id,omitempty"`
	ExportLocation string            `json:"export_location,omitempty" yaml:"export_location,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Snapshot is a point-in-time copy of exactly one share.
type Snapshot struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	ShareID     string            `json:"share_id" yaml:"share_id"`
	ShareSizeGB int               `json:"share_size" yaml:"share_size"`
	ShareProto  ShareProto        `json:"share_proto" yaml:"share_proto"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// AccessType identifies how the principal of an access rule is expressed.
type AccessType string

const (
	AccessTypeIP   AccessType = "ip"
	AccessTypeUser AccessType = "user"
	AccessTypeCert AccessType = "cert"
)

// AccessLevel is the permission an access rule grants.
type AccessLevel string

const (
	AccessLevelRW AccessLevel = "rw"
	AccessLevelRO AccessLevel = "ro"
)

// AccessRule grants a principal access to a share.
type AccessRule struct {
	ID          string      `json:"id" yaml:"id"`
	AccessType  AccessType  `json:"access_type" yaml:"access_type"`
	AccessTo    string      `json:"access_to" yaml:"access_to"`
	AccessLevel AccessLevel `json:"access_level" yaml:"access_level"`
}

// ShareServer is a per-tenant execution context some backends host shares on.
type ShareServer struct {
	ID             string            `json:"id" yaml:"id"`
	Host           string            `json:"host" yaml:"host"`
	ShareNetworkID string            `json:"share_network_id" yaml:"share_network_id"`
	BackendDetails ServerDetails     `json:"backend_details,omitempty" yaml:"backend_details,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ServerDetails is the backend-specific description of a set-up share server.
type ServerDetails map[string]string

// SecurityServiceType enumerates the supported security services.
type SecurityServiceType string

const (
	SecurityServiceLDAP            SecurityServiceType = "ldap"
	SecurityServiceKerberos        SecurityServiceType = "kerberos"
	SecurityServiceActiveDirectory SecurityServiceType = "active_directory"
)

// SecurityService describes an identity service a share server joins.
type SecurityService struct {
	ID       string              `json:"id" yaml:"id"`
	Type     SecurityServiceType `json:"type" yaml:"type"`
	DNSIP    string              `json:"dns_ip,omitempty" yaml:"dns_ip,omitempty"`
	Server   string              `json:"server,omitempty" yaml:"server,omitempty"`
	Domain   string              `json:"domain,omitempty" yaml:"domain,omitempty"`
	User     string              `json:"user,omitempty" yaml:"user,omitempty"`
	Password string              `json:"-" yaml:"-"`
}

// ShareNetwork is the tenant network a share server is plugged into.
type ShareNetwork struct {
	ID               string            `json:"id" yaml:"id"`
	NeutronNetID     string            `json:"neutron_net_id,omitempty" yaml:"neutron_net_id,omitempty"`
	NeutronSubnetID  string            `json:"neutron_subnet_id,omitempty" yaml:"neutron_subnet_id,omitempty"`
	NetworkType      string            `json:"network_type,omitempty" yaml:"network_type,omitempty"`
	SegmentationID   int               `json:"segmentation_id,omitempty" yaml:"segmentation_id,omitempty"`
	CIDR             string            `json:"cidr,omitempty" yaml:"cidr,omitempty"`
	IPVersion        int               `json:"ip_version,omitempty" yaml:"ip_version,omitempty"`
	SecurityServices []SecurityService `json:"security_services,omitempty" yaml:"security_services,omitempty"`
}

// NetworkAllocation is one address handed to a share server.
type NetworkAllocation struct {
	ID            string `json:"id" yaml:"id"`
	ShareServerID string `json:"share_server_id" yaml:"share_server_id"`
	IPAddress     string `json:"ip_address" yaml:"ip_address"`
	MACAddress    string `json:"mac_address,omitempty" yaml:"mac_address,omitempty"`
}

// NetworkInfo is what a backend receives to set up a share server.
type NetworkInfo struct {
	ServerID         string              `json:"server_id" yaml:"server_id"`
	ShareNetworkID   string              `json:"share_network_id" yaml:"share_network_id"`
	NetworkType      string              `json:"network_type,omitempty" yaml:"network_type,omitempty"`
	SegmentationID   int                 `json:"segmentation_id,omitempty" yaml:"segmentation_id,omitempty"`
	CIDR             string              `json:"cidr,omitempty" yaml:"cidr,omitempty"`
	Allocations      []NetworkAllocation `json:"network_allocations,omitempty" yaml:"network_allocations,omitempty"`
	SecurityServices []SecurityService   `json:"security_services,omitempty" yaml:"security_services,omitempty"`
}

// Capacity is a size in GiB, or the unbounded sentinel meaning the backend
// does not meter capacity.
type Capacity struct {
	gb       float64
	infinite bool
}

// Infinite is the unbounded capacity sentinel.
var Infinite = Capacity{infinite: true}

// CapacityGB returns a metered capacity.
func CapacityGB(gb float64) Capacity {
	return Capacity{gb: gb}
}

// IsInfinite reports whether c is the unbounded sentinel.
func (c Capacity) IsInfinite() bool { return c.infinite }

// GB returns the metered size; it is zero for the unbounded sentinel.
func (c Capacity) GB() float64 { return c.gb }

func (c Capacity) String() string {
	if c.infinite {
		return "infinite"
	}
	return strconv.FormatFloat(c.gb, 'f', -1, 64)
}

func (c Capacity) MarshalJSON() ([]byte, error) {
	if c.infinite {
		return json.Marshal("infinite")
	}
	return json.Marshal(c.gb)
}

func (c *Capacity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "infinite" && s != "unknown" {
			return fmt.Errorf("invalid capacity %q", s)
		}
		*c = Infinite
		return nil
	}
	var gb float64
	if err := json.Unmarshal(data, &gb); err != nil {
		return fmt.Errorf("invalid capacity: %w", err)
	}
	*c = CapacityGB(gb)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (c Capacity) MarshalYAML() (interface{}, error) {
	if c.infinite {
		return "infinite", nil
	}
	return c.gb, nil
}

// ShareStats is the capability snapshot a backend reports about itself.
type ShareStats struct {
	ShareBackendName   string   `json:"share_backend_name" yaml:"share_backend_name"`
	VendorName         string   `json:"vendor_name" yaml:"vendor_name"`
	DriverVersion      string   `json:"driver_version" yaml:"driver_version"`
	StorageProtocol    string   `json:"storage_protocol" yaml:"storage_protocol"`
	TotalCapacityGB    Capacity `json:"total_capacity_gb" yaml:"total_capacity_gb"`
	FreeCapacityGB     Capacity `json:"free_capacity_gb" yaml:"free_capacity_gb"`
	ReservedPercentage int      `json:"reserved_percentage" yaml:"reserved_percentage"`
	QoSSupport         bool     `json:"QoS_support" yaml:"QoS_support"`
}
