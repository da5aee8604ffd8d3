// Package status defines the error code space used in failure replies.
//
// Codes live in three disjoint ranges told apart by high-bit offsets:
// system errors wrap the platform errno, protocol errors cover the
// adapter's own dispatch failures, and the remaining low range carries
// raw HCI status codes.
package status

import "syscall"

type Code uint32

const (
	// SystemOffset marks codes that wrap a platform errno.
	SystemOffset Code = 1 << 29
	// ProtoOffset marks the adapter protocol error range.
	ProtoOffset Code = 1 << 28
)

// Adapter protocol errors.
const (
	UnknownMethod  = ProtoOffset | 0x01
	WrongSignature = ProtoOffset | 0x02
	WrongParam     = ProtoOffset | 0x03
	RecordNotFound = ProtoOffset | 0x04
	NoMem          = ProtoOffset | 0x05
	ConnNotFound   = ProtoOffset | 0x06
	UnknownPath    = ProtoOffset | 0x07
	NotImplemented = ProtoOffset | 0x08
)

// HCI status codes [Vol 2, Part D].
const (
	HCIUnknownCommand               Code = 0x01
	HCINoConnection                 Code = 0x02
	HCIHardwareFailure              Code = 0x03
	HCIPageTimeout                  Code = 0x04
	HCIAuthenticationFailure        Code = 0x05
	HCIPinOrKeyMissing              Code = 0x06
	HCIMemoryFull                   Code = 0x07
	HCIConnectionTimeout            Code = 0x08
	HCIMaxConnections               Code = 0x09
	HCIMaxSCOConnections            Code = 0x0a
	HCIACLConnectionExists          Code = 0x0b
	HCICommandDisallowed            Code = 0x0c
	HCIRejectedLimitedResources     Code = 0x0d
	HCIRejectedSecurity             Code = 0x0e
	HCIRejectedPersonal             Code = 0x0f
	HCIHostTimeout                  Code = 0x10
	HCIUnsupportedFeature           Code = 0x11
	HCIInvalidParameters            Code = 0x12
	HCIOEUserEndedConnection        Code = 0x13
	HCIOELowResources               Code = 0x14
	HCIOEPowerOff                   Code = 0x15
	HCIConnectionTerminated         Code = 0x16
	HCIRepeatedAttempts             Code = 0x17
	HCIPairingNotAllowed            Code = 0x18
	HCIUnknownLMPPDU                Code = 0x19
	HCIUnsupportedRemoteFeature     Code = 0x1a
	HCISCOOffsetRejected            Code = 0x1b
	HCISCOIntervalRejected          Code = 0x1c
	HCIAirModeRejected              Code = 0x1d
	HCIInvalidLMPParameters         Code = 0x1e
	HCIUnspecifiedError             Code = 0x1f
	HCIUnsupportedLMPParameterValue Code = 0x20
	HCIRoleChangeNotAllowed         Code = 0x21
	HCILMPResponseTimeout           Code = 0x22
	HCILMPErrorTransactionCollision Code = 0x23
	HCILMPPDUNotAllowed             Code = 0x24
	HCIEncryptionModeNotAccepted    Code = 0x25
	HCIUnitLinkKeyUsed              Code = 0x26
	HCIQoSNotSupported              Code = 0x27
	HCIInstantPassed                Code = 0x28
	HCIPairingNotSupported          Code = 0x29
	HCITransactionCollision         Code = 0x2a
	HCIQoSUnacceptableParameter     Code = 0x2c
	HCIQoSRejected                  Code = 0x2d
	HCIClassificationNotSupported   Code = 0x2e
	HCIInsufficientSecurity         Code = 0x2f
	HCIParameterOutOfRange          Code = 0x30
	HCIRoleSwitchPending            Code = 0x32
	HCISlotViolation                Code = 0x34
	HCIRoleSwitchFailed             Code = 0x35
)

var protoText = map[Code]string{
	UnknownMethod:  "Method not found",
	WrongSignature: "Wrong method signature",
	WrongParam:     "Invalid parameters",
	RecordNotFound: "No record found",
	NoMem:          "No memory",
	ConnNotFound:   "Connection not found",
	UnknownPath:    "Unknown object path",
	NotImplemented: "Method not implemented",
}

var hciText = map[Code]string{
	HCIUnknownCommand:               "Unknown HCI Command",
	HCINoConnection:                 "Unknown Connection Identifier",
	HCIHardwareFailure:              "Hardware Failure",
	HCIPageTimeout:                  "Page Timeout",
	HCIAuthenticationFailure:        "Authentication Failure",
	HCIPinOrKeyMissing:              "PIN Missing",
	HCIMemoryFull:                   "Memory Capacity Exceeded",
	HCIConnectionTimeout:            "Connection Timeout",
	HCIMaxConnections:               "Connection Limit Exceeded",
	HCIMaxSCOConnections:            "Synchronous Connection Limit To A Device Exceeded",
	HCIACLConnectionExists:          "ACL Connection Already Exists",
	HCICommandDisallowed:            "Command Disallowed",
	HCIRejectedLimitedResources:     "Connection Rejected due to Limited Resources",
	HCIRejectedSecurity:             "Connection Rejected Due To Security Reasons",
	HCIRejectedPersonal:             "Connection Rejected due to Unacceptable BD_ADDR",
	HCIHostTimeout:                  "Connection Accept Timeout Exceeded",
	HCIUnsupportedFeature:           "Unsupported Feature or Parameter Value",
	HCIInvalidParameters:            "Invalid HCI Command Parameters",
	HCIOEUserEndedConnection:        "Remote User Terminated Connection",
	HCIOELowResources:               "Remote Device Terminated Connection due to Low Resources",
	HCIOEPowerOff:                   "Remote Device Terminated Connection due to Power Off",
	HCIConnectionTerminated:         "Connection Terminated By Local Host",
	HCIRepeatedAttempts:             "Repeated Attempts",
	HCIPairingNotAllowed:            "Pairing Not Allowed",
	HCIUnknownLMPPDU:                "Unknown LMP PDU",
	HCIUnsupportedRemoteFeature:     "Unsupported Remote Feature",
	HCISCOOffsetRejected:            "SCO Offset Rejected",
	HCISCOIntervalRejected:          "SCO Interval Rejected",
	HCIAirModeRejected:              "SCO Air Mode Rejected",
	HCIInvalidLMPParameters:         "Invalid LMP Parameters",
	HCIUnspecifiedError:             "Unspecified Error",
	HCIUnsupportedLMPParameterValue: "Unsupported LMP Parameter Value",
	HCIRoleChangeNotAllowed:         "Role Change Not Allowed",
	HCILMPResponseTimeout:           "LMP Response Timeout",
	HCILMPErrorTransactionCollision: "LMP Error Transaction Collision",
	HCILMPPDUNotAllowed:             "LMP PDU Not Allowed",
	HCIEncryptionModeNotAccepted:    "Encryption Mode Not Acceptable",
	HCIUnitLinkKeyUsed:              "Link Key Can Not be Changed",
	HCIQoSNotSupported:              "Requested QoS Not Supported",
	HCIInstantPassed:                "Instant Passed",
	HCIPairingNotSupported:          "Pairing With Unit Key Not Supported",
	HCITransactionCollision:         "Different Transaction Collision",
	HCIQoSUnacceptableParameter:     "QoS Unacceptable Parameter",
	HCIQoSRejected:                  "QoS Rejected",
	HCIClassificationNotSupported:   "Channel Classification Not Supported",
	HCIInsufficientSecurity:         "Insufficient Security",
	HCIParameterOutOfRange:          "Parameter Out Of Mandatory Range",
	HCIRoleSwitchPending:            "Role Switch Pending",
	HCISlotViolation:                "Reserved Slot Violation",
	HCIRoleSwitchFailed:             "Role Switch Failed",
}

// System wraps an errno into the system error range.
func System(errno syscall.Errno) Code {
	return SystemOffset | Code(errno)
}

// FromHCI wraps a raw HCI status byte.
func FromHCI(st uint8) Code {
	return Code(st)
}

// FromError maps an arbitrary error to a system-range code. Errors that do
// not carry an errno come out as EIO.
func FromError(err error) Code {
	type causer interface {
		Cause() error
	}
	for err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			return System(errno)
		}
		c, ok := err.(causer)
		if !ok {
			break
		}
		err = c.Cause()
	}
	return System(syscall.EIO)
}

// Describe returns the human-readable description for a code, or the empty
// string when the code is not part of any table.
func Describe(c Code) string {
	switch {
	case c&SystemOffset != 0:
		return syscall.Errno(c &^ SystemOffset).Error()
	case c&ProtoOffset != 0:
		return protoText[c]
	default:
		return hciText[c]
	}
}
