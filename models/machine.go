package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmvendtrack/vending_backend/config"
	"github.com/mmvendtrack/vending_backend/utils"
	"gorm.io/gorm"
)

const machineCodeMapCacheTTL = 10 * time.Minute

// VendingMachine is the registry entry that raw sale machine codes resolve
// against. Code is the hardware-side identifier and is unique per
// organization.
type VendingMachine struct {
	ID             int    `gorm:"primary_key" json:"id"`
	OrganizationId string `gorm:"index;not null" json:"organization_id"`

	Code     string `gorm:"size:50;index;not null" json:"code"`
	Name     string `gorm:"size:255;not null" json:"name"`
	Location string `gorm:"size:255" json:"location"`
	IsActive *bool  `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type NewVendingMachine struct {
	Code     string `json:"code" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Location string `json:"location"`
	IsActive *bool  `json:"is_active"`
}

func machineCodeMapCacheKey(organizationId string) string {
	return fmt.Sprintf("machineCodeMap:%s", organizationId)
}

func CreateVendingMachine(ctx context.Context, input *NewVendingMachine) (*VendingMachine, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, errors.New("organization id is required")
	}

	if err := utils.ValidateUnique[VendingMachine](ctx, organizationId, "code", input.Code, 0); err != nil {
		return nil, err
	}

	isActive := input.IsActive
	if isActive == nil {
		isActive = utils.NewTrue()
	}

	db := config.GetDB()
	machine := VendingMachine{
		OrganizationId: organizationId,
		Code:           input.Code,
		Name:           input.Name,
		Location:       input.Location,
		IsActive:       isActive,
	}
	if err := db.WithContext(ctx).Create(&machine).Error; err != nil {
		return nil, err
	}

	config.RemoveRedisKey(machineCodeMapCacheKey(organizationId))
	return &machine, nil
}

func UpdateVendingMachine(ctx context.Context, id int, input *NewVendingMachine) (*VendingMachine, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, errors.New("organization id is required")
	}

	machine, err := utils.FetchModel[VendingMachine](ctx, organizationId, id)
	if err != nil {
		return nil, err
	}

	if err := utils.ValidateUnique[VendingMachine](ctx, organizationId, "code", input.Code, id); err != nil {
		return nil, err
	}

	machine.Code = input.Code
	machine.Name = input.Name
	machine.Location = input.Location
	if input.IsActive != nil {
		machine.IsActive = input.IsActive
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(machine).Error; err != nil {
		return nil, err
	}

	config.RemoveRedisKey(machineCodeMapCacheKey(organizationId))
	return machine, nil
}

func GetVendingMachine(ctx context.Context, id int) (*VendingMachine, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, errors.New("organization id is required")
	}
	return utils.FetchModel[VendingMachine](ctx, organizationId, id)
}

func FetchVendingMachines(ctx context.Context) ([]*VendingMachine, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, errors.New("organization id is required")
	}
	return utils.FetchAllModels[VendingMachine](ctx, organizationId)
}

func DeleteVendingMachine(ctx context.Context, id int) (*VendingMachine, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, errors.New("organization id is required")
	}

	machine, err := utils.FetchModel[VendingMachine](ctx, organizationId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(machine).Error; err != nil {
		return nil, err
	}

	config.RemoveRedisKey(machineCodeMapCacheKey(organizationId))
	return machine, nil
}

// MachineIdsByCode returns the organization's code -> machine id map,
// served from redis when warm. A cold or unavailable cache falls back to
// the database and repopulates.
func MachineIdsByCode(ctx context.Context, organizationId string) (map[string]int, error) {
	cacheKey := machineCodeMapCacheKey(organizationId)

	codeMap := map[string]int{}
	if found, err := config.GetRedisObject(cacheKey, &codeMap); err == nil && found {
		return codeMap, nil
	}

	machines, err := utils.FetchAllModels[VendingMachine](ctx, organizationId)
	if err != nil {
		return nil, err
	}

	codeMap = make(map[string]int, len(machines))
	for _, machine := range machines {
		codeMap[machine.Code] = machine.ID
	}

	config.SetRedisObject(cacheKey, codeMap, machineCodeMapCacheTTL)
	return codeMap, nil
}
