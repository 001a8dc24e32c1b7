// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

// MPU-6050 register offsets.
const (
	regSmplrtDiv   = 0x19
	regConfig      = 0x1A
	regGyroConfig  = 0x1B
	regAccelConfig = 0x1C
	regAccelXoutH  = 0x3B
	regTempOutH    = 0x41
	regGyroXoutH   = 0x43
	regPwrMgmt1    = 0x6B
	regPwrMgmt2    = 0x6C
	regWhoAmI      = 0x75
)

// PWR_MGMT_1 control bytes.
const (
	pwrWake  = 0x01 // SLEEP=0, CLKSEL=PLL with X gyro reference
	pwrSleep = 0x40 // SLEEP=1
)

// ExpectedWhoAmI is the identity value of a genuine MPU-6050.
const ExpectedWhoAmI = 0x68

// BitField describes a field within a register.
type BitField struct {
	Bits        string `json:"bits"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// RegisterInfo is metadata for one register or register block.
type RegisterInfo struct {
	Address     byte       `json:"address"`
	Length      int        `json:"length"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW"
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// RegisterMap returns the registers this driver touches, in address order.
func RegisterMap() []RegisterInfo {
	return []RegisterInfo{
		{Address: regSmplrtDiv, Length: 1, Name: "SMPLRT_DIV", Description: "Sample Rate Divider", Access: "RW",
			BitFields: []BitField{
				{Bits: "7:0", Name: "SMPLRT_DIV", Description: "Sample Rate = Gyro_Output_Rate / (1 + SMPLRT_DIV)", Values: "0-255"},
			}},
		{Address: regConfig, Length: 1, Name: "CONFIG", Description: "Configuration (DLPF)", Access: "RW",
			BitFields: []BitField{
				{Bits: "5:3", Name: "EXT_SYNC_SET", Description: "External FSYNC pin sampling", Values: "0=Disabled"},
				{Bits: "2:0", Name: "DLPF_CFG", Description: "Digital Low Pass Filter", Values: "0=260Hz, 1=184Hz, 2=94Hz, 3=44Hz, 4=21Hz, 5=10Hz, 6=5Hz"},
			}},
		{Address: regGyroConfig, Length: 1, Name: "GYRO_CONFIG", Description: "Gyroscope Configuration", Access: "RW",
			BitFields: []BitField{
				{Bits: "7:5", Name: "XG_ST/YG_ST/ZG_ST", Description: "Gyro self-test", Values: "0=Disabled"},
				{Bits: "4:3", Name: "FS_SEL", Description: "Gyro Full Scale Range", Values: "0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s"},
			}},
		{Address: regAccelConfig, Length: 1, Name: "ACCEL_CONFIG", Description: "Accelerometer Configuration", Access: "RW",
			BitFields: []BitField{
				{Bits: "7:5", Name: "XA_ST/YA_ST/ZA_ST", Description: "Accel self-test", Values: "0=Disabled"},
				{Bits: "4:3", Name: "AFS_SEL", Description: "Accel Full Scale Range", Values: "0=±2g, 1=±4g, 2=±8g, 3=±16g"},
			}},
		{Address: regAccelXoutH, Length: 6, Name: "ACCEL_OUT", Description: "Accelerometer X/Y/Z, big-endian pairs", Access: "R"},
		{Address: regTempOutH, Length: 2, Name: "TEMP_OUT", Description: "Temperature, big-endian pair", Access: "R"},
		{Address: regGyroXoutH, Length: 6, Name: "GYRO_OUT", Description: "Gyroscope X/Y/Z, big-endian pairs", Access: "R"},
		{Address: regPwrMgmt1, Length: 1, Name: "PWR_MGMT_1", Description: "Power Management 1", Access: "RW",
			BitFields: []BitField{
				{Bits: "7", Name: "DEVICE_RESET", Description: "Device reset", Values: "1=Reset device"},
				{Bits: "6", Name: "SLEEP", Description: "Sleep mode", Values: "0=Disabled, 1=Sleep"},
				{Bits: "5", Name: "CYCLE", Description: "Cycle mode", Values: "0=Disabled, 1=Cycle"},
				{Bits: "3", Name: "TEMP_DIS", Description: "Temperature sensor", Values: "0=Enabled, 1=Disabled"},
				{Bits: "2:0", Name: "CLKSEL", Description: "Clock source", Values: "0=Internal 8MHz, 1=PLL X gyro"},
			}},
		{Address: regPwrMgmt2, Length: 1, Name: "PWR_MGMT_2", Description: "Power Management 2", Access: "RW"},
		{Address: regWhoAmI, Length: 1, Name: "WHO_AM_I", Description: "Device ID (should be 0x68)", Access: "R"},
	}
}
