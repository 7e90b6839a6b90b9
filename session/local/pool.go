//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

package local

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/artloom/artloom/artifact"
	"github.com/artloom/artloom/log"
)

type cleanupParam struct {
	ctx       context.Context
	store     artifact.Store
	namespace string
	wg        *sync.WaitGroup
}

func (p *cleanupParam) reset() {
	p.ctx = nil
	p.store = nil
	p.namespace = ""
	p.wg = nil
}

var cleanupParamPool = &sync.Pool{
	New: func() any { return new(cleanupParam) },
}

func newCleanupPool(size int) (*ants.PoolWithFunc, error) {
	if size <= 0 {
		return nil, errors.New("pool size must be greater than 0")
	}
	pool, err := ants.NewPoolWithFunc(size, func(args any) {
		param, ok := args.(*cleanupParam)
		if !ok {
			panic("session cleanup pool args type error")
		}
		wg := param.wg
		defer func() {
			wg.Done()
			param.reset()
			cleanupParamPool.Put(param)
		}()
		if err := param.store.RemoveAll(param.ctx, param.namespace); err != nil {
			log.Warnf("remove artifact namespace %s: %v", param.namespace, err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create session cleanup pool: %w", err)
	}
	return pool, nil
}
