// Package telemetry exposes meter snapshots as the resources of the 3-phase
// power meter object (10242) and pushes changed values to observers.
package telemetry

import (
	"time"

	"github.com/sirupsen/logrus"
)

// PowerMeterObjectID is the object id of the 3-phase power meter.
const PowerMeterObjectID = 10242

// Resource ids of the power meter object.
const (
	ResManufacturer = 0
	ResModelNumber  = 1
	ResSerialNumber = 2
	ResDescription  = 3

	ResVoltageR       = 4
	ResCurrentR       = 5
	ResActivePowerR   = 6
	ResReactivePowerR = 7
	ResApparentPowerR = 10
	ResPowerFactorR   = 11

	ResVoltageS       = 14
	ResCurrentS       = 15
	ResActivePowerS   = 16
	ResReactivePowerS = 17
	ResApparentPowerS = 20
	ResPowerFactorS   = 21

	ResVoltageT       = 24
	ResCurrentT       = 25
	ResActivePowerT   = 26
	ResReactivePowerT = 27
	ResApparentPowerT = 30
	ResPowerFactorT   = 31

	ResTotalActivePower   = 34
	ResTotalReactivePower = 35
	ResTotalApparentPower = 38
	ResTotalPowerFactor   = 39
	ResActiveEnergy       = 41
	ResReactiveEnergy     = 42
	ResApparentEnergy     = 45
	ResFrequency          = 49
	ResNeutralCurrent     = 50
)

var _lg = logrus.WithField("module", "telemetry")

// Resource is one numeric value of the power meter object.
type Resource struct {
	ID    uint16  `json:"id"`
	Name  string  `json:"name"`
	Unit  string  `json:"unit,omitempty"`
	Value float64 `json:"value"`
}

// DeviceInfo fills the descriptive string resources 0 to 3.
type DeviceInfo struct {
	Manufacturer string `json:"manufacturer"`
	ModelNumber  string `json:"model_number"`
	SerialNumber string `json:"serial_number"`
	Description  string `json:"description"`
}

// Observer receives the resources that changed with one snapshot.
type Observer interface {
	Notify(ts time.Time, changed []Resource) error
}
