package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/nimo-qualify/internal/srm/entity"
	"github.com/bitfantasy/nimo-qualify/internal/srm/repository"
)

// SupplierService 供应商目录（资格结论只由评估结论写入）
type SupplierService struct {
	repo *repository.SupplierRepository
}

func NewSupplierService(repo *repository.SupplierRepository) *SupplierService {
	return &SupplierService{repo: repo}
}

// CreateSupplierRequest 登记供应商
type CreateSupplierRequest struct {
	Name           string             `json:"name" binding:"required"`
	ShortName      string             `json:"short_name"`
	Category       string             `json:"category" binding:"required,oneof=api excipient packaging finished_dose other"`
	Country        string             `json:"country"`
	GMPCertified   bool               `json:"gmp_certified"`
	Certifications *entity.JSONBArray `json:"certifications"`
}

// List 获取供应商列表
func (s *SupplierService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Supplier, int64, error) {
	return s.repo.FindAll(ctx, page, pageSize, filters)
}

// Get 获取供应商详情
func (s *SupplierService) Get(ctx context.Context, id string) (*entity.Supplier, error) {
	return s.repo.FindByID(ctx, id)
}

// Create 创建供应商，初始状态 pending
func (s *SupplierService) Create(ctx context.Context, userID string, req *CreateSupplierRequest) (*entity.Supplier, error) {
	code, err := s.repo.GenerateCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate supplier code: %w", err)
	}

	supplier := &entity.Supplier{
		Code:           code,
		Name:           req.Name,
		ShortName:      req.ShortName,
		Category:       req.Category,
		Country:        req.Country,
		Status:         entity.SupplierStatusPending,
		GMPCertified:   req.GMPCertified,
		Certifications: req.Certifications,
		CreatedBy:      userID,
	}
	if err := s.repo.Create(ctx, supplier); err != nil {
		return nil, err
	}
	return supplier, nil
}
