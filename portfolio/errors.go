// Copyright 2024-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package portfolio

import "errors"

var (
	ErrInsufficientCash        = errors.New("buy request exceeds available cash")
	ErrInsufficientShares      = errors.New("sell request exceeds position")
	ErrContributionCapExceeded = errors.New("annual contribution cap exceeded")
	ErrUnknownLotMethod        = errors.New("unknown lot disposal method")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrInvalidPrice            = errors.New("price must be positive")
	ErrInvalidRatio            = errors.New("split ratio must be positive")
	ErrInternalConsistency     = errors.New("internal consistency check failed")
)
