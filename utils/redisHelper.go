package utils

import (
	"os"
	"reflect"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/config"
)

// Cache lifespan for summary-style reads. Short by default since allocation
// numbers move with every sync run.
func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN_SECONDS"))
	if err != nil || lifespan <= 0 {
		lifespan = 60
	}
	return time.Duration(lifespan) * time.Second
}

func GetTypeName[T any]() string {
	var v T
	return reflect.TypeOf(v).Name()
}

func cacheListKey[T any](companyId string) string {
	if companyId == "" {
		return GetTypeName[T]() + "List"
	}
	return GetTypeName[T]() + "List:" + companyId
}

// StoreRedisList caches a company-scoped list under "TypeList:$company_id".
func StoreRedisList[T any](obj any, companyId string) error {
	return config.SetRedisObject(cacheListKey[T](companyId), &obj, GetCacheLifespan())
}

// RetrieveRedisList returns nil without error on a cache miss (or when Redis
// is not connected), so callers fall through to the database.
func RetrieveRedisList[T any](companyId string) ([]*T, error) {
	var result []*T
	exists, err := config.GetRedisObject(cacheListKey[T](companyId), &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return result, nil
}

func RemoveRedisList[T any](companyId string) error {
	return config.RemoveRedisKey(cacheListKey[T](companyId))
}
