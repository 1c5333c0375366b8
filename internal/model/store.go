package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StoreRecord is the canonical shape of one ingested row.
// The (StoreName, StoreAddress) pair identifies a store.
type StoreRecord struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	StoreName      string             `bson:"store_name" json:"storeName"`
	StoreAddress   string             `bson:"store_address" json:"storeAddress"`
	CityName       string             `bson:"city_name" json:"cityName"`
	RegionName     string             `bson:"region_name" json:"regionName"`
	RetailerName   string             `bson:"retailer_name" json:"retailerName"`
	StoreType      string             `bson:"store_type" json:"storeType"`
	StoreLongitude *float64           `bson:"store_longitude,omitempty" json:"storeLongitude,omitempty"`
	StoreLatitude  *float64           `bson:"store_latitude,omitempty" json:"storeLatitude,omitempty"`
	Placeholder    bool               `bson:"placeholder,omitempty" json:"placeholder,omitempty"`
	JobID          string             `bson:"job_id" json:"jobId"`
	RowIndex       int                `bson:"row_index" json:"rowIndex"`
	UploadedAt     time.Time          `bson:"uploaded_at" json:"uploadedAt"`
}

// StoreFilter narrows store listings
type StoreFilter struct {
	Search string
	Page   int
	Limit  int
}

// Overview summarises the whole system for the admin view
type Overview struct {
	TotalJobs          int64 `json:"totalJobs"`
	TotalRecords       int64 `json:"totalRecords"`
	FailedJobs         int64 `json:"failedJobs"`
	TotalFailedRecords int64 `json:"totalFailedRecords"`
}
