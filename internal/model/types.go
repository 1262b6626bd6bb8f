package model

import "time"

// Core domain types shared by the store, dispatch and api layers.

type TripStatus string

const (
	TripPending    TripStatus = "pending"
	TripAssigned   TripStatus = "assigned"
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
)

// TripStatuses lists every legal trip status in lifecycle order.
var TripStatuses = []TripStatus{TripPending, TripAssigned, TripInProgress, TripCompleted, TripCancelled}

// Valid reports whether s is one of the five trip statuses.
func (s TripStatus) Valid() bool {
	for _, v := range TripStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are expected.
func (s TripStatus) Terminal() bool { return s == TripCompleted || s == TripCancelled }

// Open reports whether drivers holding an assignment in this status are working.
func (s TripStatus) Open() bool { return s == TripAssigned || s == TripInProgress }

type DriverStatus string

const (
	DriverAvailable DriverStatus = "available"
	DriverBusy      DriverStatus = "busy"
)

func (s DriverStatus) Valid() bool { return s == DriverAvailable || s == DriverBusy }

type Trip struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenantId"`
	Code             string     `json:"code"`
	Customer         string     `json:"customer,omitempty"`
	Shipper          string     `json:"shipper,omitempty"`
	CustomsBroker    string     `json:"customsBroker,omitempty"`
	CompanyAmount    *float64   `json:"companyAmount,omitempty"`
	DriverAmount     *float64   `json:"driverAmount,omitempty"`
	PickupDate       string     `json:"pickupDate,omitempty"`
	PickupTime       string     `json:"pickupTime,omitempty"`
	PickupLocation   string     `json:"pickupLocation"`
	DeliveryLocation string     `json:"deliveryLocation"`
	Quantity         *float64   `json:"quantity,omitempty"`
	QuantityUnit     string     `json:"quantityUnit,omitempty"`
	Volume           *float64   `json:"volume,omitempty"`
	VolumeUnit       string     `json:"volumeUnit,omitempty"`
	Weight           *float64   `json:"weight,omitempty"`
	VehicleType      string     `json:"vehicleType,omitempty"`
	Remarks          string     `json:"remarks,omitempty"`
	Status           TripStatus `json:"status"`
	HasPhotos        bool       `json:"hasPhotos"`
	PhotoCount       int        `json:"photoCount"`
	CreatedBy        string     `json:"createdBy,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	DeletedAt        *time.Time `json:"deletedAt,omitempty"`
}

// TripDetail is the read model returned by the API: the trip plus its current drivers.
type TripDetail struct {
	Trip
	Drivers []Assignment `json:"drivers"`
}

// TripInput carries the caller-supplied fields of a new trip.
type TripInput struct {
	Code             string   `json:"code,omitempty" validate:"omitempty,max=64"`
	Customer         string   `json:"customer,omitempty" validate:"max=255"`
	Shipper          string   `json:"shipper,omitempty"`
	CustomsBroker    string   `json:"customsBroker,omitempty"`
	CompanyAmount    *float64 `json:"companyAmount,omitempty" validate:"omitempty,gte=0"`
	DriverAmount     *float64 `json:"driverAmount,omitempty" validate:"omitempty,gte=0"`
	PickupDate       string   `json:"pickupDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PickupTime       string   `json:"pickupTime,omitempty"`
	PickupLocation   string   `json:"pickupLocation" validate:"required"`
	DeliveryLocation string   `json:"deliveryLocation" validate:"required"`
	Quantity         *float64 `json:"quantity,omitempty" validate:"omitempty,gte=0"`
	QuantityUnit     string   `json:"quantityUnit,omitempty"`
	Volume           *float64 `json:"volume,omitempty" validate:"omitempty,gte=0"`
	VolumeUnit       string   `json:"volumeUnit,omitempty"`
	Weight           *float64 `json:"weight,omitempty" validate:"omitempty,gte=0"`
	VehicleType      string   `json:"vehicleType,omitempty"`
	Remarks          string   `json:"remarks,omitempty"`
}

// TripPatch is a partial update of trip fields. Status is not patchable here.
type TripPatch struct {
	Code             *string  `json:"code,omitempty" validate:"omitempty,min=1,max=64"`
	Customer         *string  `json:"customer,omitempty"`
	Shipper          *string  `json:"shipper,omitempty"`
	CustomsBroker    *string  `json:"customsBroker,omitempty"`
	CompanyAmount    *float64 `json:"companyAmount,omitempty" validate:"omitempty,gte=0"`
	DriverAmount     *float64 `json:"driverAmount,omitempty" validate:"omitempty,gte=0"`
	PickupDate       *string  `json:"pickupDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PickupTime       *string  `json:"pickupTime,omitempty"`
	PickupLocation   *string  `json:"pickupLocation,omitempty" validate:"omitempty,min=1"`
	DeliveryLocation *string  `json:"deliveryLocation,omitempty" validate:"omitempty,min=1"`
	Quantity         *float64 `json:"quantity,omitempty" validate:"omitempty,gte=0"`
	QuantityUnit     *string  `json:"quantityUnit,omitempty"`
	Volume           *float64 `json:"volume,omitempty" validate:"omitempty,gte=0"`
	VolumeUnit       *string  `json:"volumeUnit,omitempty"`
	Weight           *float64 `json:"weight,omitempty" validate:"omitempty,gte=0"`
	VehicleType      *string  `json:"vehicleType,omitempty"`
	Remarks          *string  `json:"remarks,omitempty"`
}

// Apply copies the set fields of p onto t.
func (p TripPatch) Apply(t *Trip) {
	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setNum := func(dst **float64, v *float64) {
		if v != nil {
			x := *v
			*dst = &x
		}
	}
	setStr(&t.Code, p.Code)
	setStr(&t.Customer, p.Customer)
	setStr(&t.Shipper, p.Shipper)
	setStr(&t.CustomsBroker, p.CustomsBroker)
	setNum(&t.CompanyAmount, p.CompanyAmount)
	setNum(&t.DriverAmount, p.DriverAmount)
	setStr(&t.PickupDate, p.PickupDate)
	setStr(&t.PickupTime, p.PickupTime)
	setStr(&t.PickupLocation, p.PickupLocation)
	setStr(&t.DeliveryLocation, p.DeliveryLocation)
	setNum(&t.Quantity, p.Quantity)
	setStr(&t.QuantityUnit, p.QuantityUnit)
	setNum(&t.Volume, p.Volume)
	setStr(&t.VolumeUnit, p.VolumeUnit)
	setNum(&t.Weight, p.Weight)
	setStr(&t.VehicleType, p.VehicleType)
	setStr(&t.Remarks, p.Remarks)
}

// Assignment links one driver to one trip. Driver name, phone and plate are
// copied at insert time and never follow later profile edits.
type Assignment struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenantId"`
	TripID       string     `json:"tripId"`
	DriverID     string     `json:"driverId"`
	DriverName   string     `json:"driverName"`
	DriverPhone  string     `json:"driverPhone"`
	LicensePlate string     `json:"licensePlate"`
	Status       TripStatus `json:"status"`
	AssignedAt   time.Time  `json:"assignedAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type Driver struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenantId"`
	Code         string       `json:"code"`
	Name         string       `json:"name"`
	Phone        string       `json:"phone"`
	LicensePlate string       `json:"licensePlate"`
	VehicleType  string       `json:"vehicleType"`
	Status       DriverStatus `json:"status"`
	Lat          float64      `json:"lat"`
	Lng          float64      `json:"lng"`
	LocationAt   *time.Time   `json:"locationAt,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	DeletedAt    *time.Time   `json:"deletedAt,omitempty"`
}

type DriverInput struct {
	Code         string `json:"code" validate:"required,max=64"`
	Name         string `json:"name" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	LicensePlate string `json:"licensePlate" validate:"required"`
	VehicleType  string `json:"vehicleType" validate:"required"`
}

type DriverPatch struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,min=1"`
	LicensePlate *string `json:"licensePlate,omitempty" validate:"omitempty,min=1"`
	VehicleType  *string `json:"vehicleType,omitempty" validate:"omitempty,min=1"`
}

// Apply copies the set fields of p onto d.
func (p DriverPatch) Apply(d *Driver) {
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.Phone != nil {
		d.Phone = *p.Phone
	}
	if p.LicensePlate != nil {
		d.LicensePlate = *p.LicensePlate
	}
	if p.VehicleType != nil {
		d.VehicleType = *p.VehicleType
	}
}

type GeoPoint struct {
	Lat float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Lng float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Photo is proof-of-delivery metadata. The image bytes live elsewhere.
// Exactly one of UploadedByUser and UploadedByDriver is set.
type Photo struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenantId"`
	TripID           string    `json:"tripId"`
	FileName         string    `json:"fileName"`
	FileSize         int64     `json:"fileSize"`
	FileType         string    `json:"fileType"`
	LocalIdentifier  string    `json:"localIdentifier,omitempty"`
	UploadedByUser   string    `json:"uploadedBy,omitempty"`
	UploadedByDriver string    `json:"uploadedByDriver,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// PhotoDescriptor is what a client submits for one proof image.
type PhotoDescriptor struct {
	FileName        string `json:"fileName" validate:"required,max=255"`
	FileSize        int64  `json:"fileSize,omitempty" validate:"gte=0"`
	FileType        string `json:"fileType,omitempty"`
	LocalIdentifier string `json:"localIdentifier,omitempty" validate:"max=255"`
}
