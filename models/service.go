package models

// Service is the slice of a bookable listing this core needs: who owns it.
type Service struct {
	ID       string `bson:"id" json:"id"`
	VendorID string `bson:"vendorId" json:"vendorId"`
	Name     string `bson:"name,omitempty" json:"name,omitempty"`
}
