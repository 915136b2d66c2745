package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB JSONB类型
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan JSONB: %w", err)
	}
	return json.Unmarshal(raw, j)
}

// JSONBArray JSONB数组类型
type JSONBArray []interface{}

func (j JSONBArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONBArray) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan JSONBArray: %w", err)
	}
	return json.Unmarshal(raw, j)
}

// postgres 返回 []byte，sqlite 可能返回 string
func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("unsupported type %T", value)
}

// Supplier 药品供应商
type Supplier struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	Code      string `json:"code" gorm:"size:32;uniqueIndex;not null"`
	Name      string `json:"name" gorm:"size:200;not null"`
	ShortName string `json:"short_name" gorm:"size:50"`
	Category  string `json:"category" gorm:"size:50;not null"` // api/excipient/packaging/finished_dose/other
	Country   string `json:"country" gorm:"size:50"`
	Status    string `json:"status" gorm:"size:20;default:pending"`

	GMPCertified   bool        `json:"gmp_certified" gorm:"default:false"`
	Certifications *JSONBArray `json:"certifications" gorm:"type:jsonb"`

	// 资格结论（最近一次完成的评估）
	QualificationScore *float64   `json:"qualification_score" gorm:"type:decimal(5,2)"`
	QualificationBand  string     `json:"qualification_band" gorm:"size:20"`
	LastEvaluationID   string     `json:"last_evaluation_id" gorm:"size:32"`
	QualifiedAt        *time.Time `json:"qualified_at"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Supplier) TableName() string {
	return "srm_suppliers"
}

// 供应商状态
const (
	SupplierStatusPending   = "pending"
	SupplierStatusQualified = "qualified"
	SupplierStatusRejected  = "rejected"
)
